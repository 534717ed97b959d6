package commands

import (
	"context"
	"fmt"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/workers"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPostCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{Use: "post", Short: "Manage social posts"}
	cmd.AddCommand(newPostGenerateCmd(v))
	return cmd
}

func newPostGenerateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Draft today's LinkedIn post for approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				reasoner, err := rt.Reasoner()
				if err != nil {
					return err
				}
				gen := workers.NewPostGenerator(rt.Store, reasoner, rt.Ledger(ctx), rt.Notifier(ctx), rt.Logger, rt.Config.DraftTimeout)
				ref, created, err := gen.Generate(ctx)
				if err != nil {
					return err
				}
				if !created {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Post already exists: %s\n", ref.Name)
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Drafted %s\n", ref)
				return nil
			})
		},
	}
}
