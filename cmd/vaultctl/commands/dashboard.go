package commands

import (
	"context"
	"fmt"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/dashboard"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDashboardCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{Use: "dashboard", Short: "Work with the vault dashboard"}
	cmd.AddCommand(newDashboardRenderCmd(v))
	return cmd
}

func newDashboardRenderCmd(v *viper.Viper) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the dashboard from current stage counts",
		Long:  "Render the dashboard to stdout. With --write the dashboard file is rewritten without adding an activity entry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				snap, err := rt.Dashboard().Snapshot(ctx, models.NewTally())
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), snap)
				}
				text := dashboard.Render(snap)
				if write {
					if err := rt.Store.WriteFile(ctx, dashboard.Ref, []byte(text)); err != nil {
						return fmt.Errorf("failed to write dashboard: %w", err)
					}
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "also rewrite the dashboard file")
	return cmd
}
