package commands

import (
	"context"
	"fmt"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/workers"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{Use: "run", Short: "Run a single worker pass"}
	cmd.AddCommand(newRunClassifyCmd(v))
	cmd.AddCommand(newRunDraftCmd(v))
	cmd.AddCommand(newRunExecuteCmd(v))
	return cmd
}

func newRunClassifyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Classify every document in Needs_Action once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				reasoner, err := rt.Reasoner()
				if err != nil {
					return err
				}
				c := workers.NewClassifier(rt.Store, reasoner, rt.Ledger(ctx), rt.Dashboard(), rt.Logger, workers.ClassifierConfig{
					Timeout:  rt.Config.ReasonerTimeout,
					Fallback: models.Category(rt.Config.ClassifyFallback),
				})
				tally, err := c.RunPass(ctx)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), tally)
				}
				for _, category := range models.Categories {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", category, tally[category])
				}
				return nil
			})
		},
	}
}

func newRunDraftCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "draft",
		Short: "Draft responses for one batch of actionable items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				reasoner, err := rt.Reasoner()
				if err != nil {
					return err
				}
				d := workers.NewDrafter(rt.Store, reasoner, rt.Logger, workers.DrafterConfig{
					BatchSize: rt.Config.DraftBatchSize,
					Timeout:   rt.Config.DraftTimeout,
				})
				run, err := d.RunPass(ctx)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), run)
				}
				for _, ref := range run.Created {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "drafted %s\n", ref)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Raw %d, already drafted %d, undrafted %d, created %d, dropped %d\n",
					run.Raw, run.Drafted, run.Undrafted, len(run.Created), run.Dropped)
				return nil
			})
		},
	}
}

func newRunExecuteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "execute",
		Short: "Execute every approved item once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				reasoner, err := rt.Reasoner()
				if err != nil {
					return err
				}
				e := workers.NewExecutor(rt.Store, reasoner, rt.Dispatcher(), rt.Ledger(ctx), rt.Logger, rt.Config.ReasonerTimeout)
				runs, err := e.RunPass(ctx)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), runs)
				}
				if len(runs) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing approved")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Item", "Action", "Status", "Done As", "Summary"})
				for _, r := range runs {
					tw.AppendRow(table.Row{r.Source.Name, r.Action, r.Status, r.Done.Name, r.Summary})
				}
				tw.Render()
				return nil
			})
		},
	}
}
