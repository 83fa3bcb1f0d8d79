package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/store"
)

var (
	assessAll   bool
	assessLimit int
)

var assessCmd = &cobra.Command{
	Use:   "assess [entity-id]",
	Short: "Score entity data quality",
	Long: `Run the completeness, consistency, freshness, and confidence assessors
over one entity, or every active entity with --all.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			result, err := a.quality.AssessEntity(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "assess entity")
			}
			return printJSON(result)
		}
		if !assessAll {
			return eris.New("provide an entity ID or --all")
		}

		entities, err := a.store.ListEntities(ctx, store.EntityFilter{ActiveOnly: true, Limit: assessLimit})
		if err != nil {
			return eris.Wrap(err, "list entities")
		}
		ids := make([]string, len(entities))
		for i := range entities {
			ids[i] = entities[i].ID
		}

		result, err := a.quality.BatchAssess(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "batch assess")
		}
		zap.L().Info("batch assessment complete",
			zap.Int("assessed", result.Assessed),
			zap.Int("failed", len(result.Errors)))
		return printJSON(result)
	},
}

func init() {
	assessCmd.Flags().BoolVar(&assessAll, "all", false, "assess every active entity")
	assessCmd.Flags().IntVar(&assessLimit, "limit", 0, "cap the number of entities assessed with --all")
	rootCmd.AddCommand(assessCmd)
}
