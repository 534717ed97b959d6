package commands

import (
	"context"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// StageCount is one row of the stages listing
type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

var listedStages = []models.Stage{
	models.StageRaw,
	models.StagePendingApproval,
	models.StagePendingApproval.Sub("email"),
	models.StagePendingApproval.Sub("social"),
	models.StagePendingApproval.Sub("payments"),
	models.StageApproved,
	models.StagePlans,
	models.StageDone,
}

func newStagesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "Count documents per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), v, func(ctx context.Context, rt *bootstrap.Runtime) error {
				counts, err := countStages(ctx, rt.Store)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Stage", "Documents"})
				for _, c := range counts {
					tw.AppendRow(table.Row{c.Stage, c.Count})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func countStages(ctx context.Context, s store.Store) ([]StageCount, error) {
	counts := make([]StageCount, 0, len(listedStages))
	for _, stage := range listedStages {
		n, err := store.Count(ctx, s, stage)
		if err != nil {
			return nil, err
		}
		counts = append(counts, StageCount{Stage: string(stage), Count: n})
	}
	return counts, nil
}
