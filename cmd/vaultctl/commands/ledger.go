package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newLedgerCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect the audit ledger"}
	cmd.AddCommand(newLedgerShowCmd(v))
	return cmd
}

func newLedgerShowCmd(v *viper.Viper) *cobra.Command {
	var date, source string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one day of audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
				}
				day = parsed
			}

			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				entries, err := readLedger(ctx, rt, source, day)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				if len(entries) == 0 {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No audit entries for %s\n", day.Format(time.DateOnly))
					return nil
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Time", "Action", "Actor", "Target", "Approval", "Result"})
				for _, e := range entries {
					tw.AppendRow(table.Row{
						e.Timestamp.Format(time.TimeOnly),
						e.ActionType,
						e.Actor,
						e.Target,
						e.ApprovalStatus,
						e.Result,
					})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "Total", len(entries)})
				tw.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to show as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&source, "source", "vault", "where to read entries from: vault or mirror")
	return cmd
}

func readLedger(ctx context.Context, rt *bootstrap.Runtime, source string, day time.Time) ([]models.AuditLogEntry, error) {
	switch source {
	case "vault", "":
		entries, err := rt.Ledger(ctx).Entries(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		return entries, nil
	case "mirror":
		repo, err := rt.AuditRepository(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit mirror: %w", err)
		}
		if repo == nil {
			return nil, fmt.Errorf("AUDIT_DATABASE_URL is not set")
		}
		return repo.ListByDay(ctx, day)
	default:
		return nil, fmt.Errorf("invalid --source %q: expected vault or mirror", source)
	}
}
