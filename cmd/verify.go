package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

var verifyAll bool

var verifyCmd = &cobra.Command{
	Use:   "verify [entity-id]",
	Short: "Verify tamper-evidence hashes",
	Long: `Recompute the entity data hash and every provenance record hash and
compare against the stored values. Mismatches are reported, never repaired.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			report, err := a.ledger.VerifyIntegrity(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "verify entity")
			}
			return printJSON(report)
		}
		if !verifyAll {
			return eris.New("provide an entity ID or --all")
		}

		entities, err := a.store.ListEntities(ctx, store.EntityFilter{})
		if err != nil {
			return eris.Wrap(err, "list entities")
		}

		var reports []model.IntegrityReport
		clean := 0
		for i := range entities {
			report, err := a.ledger.VerifyIntegrity(ctx, entities[i].ID)
			if err != nil {
				zap.L().Warn("integrity check failed",
					zap.String("entity_id", entities[i].ID), zap.Error(err))
				continue
			}
			if report.Verified {
				clean++
				continue
			}
			reports = append(reports, *report)
		}

		zap.L().Info("integrity sweep complete",
			zap.Int("entities", len(entities)),
			zap.Int("clean", clean),
			zap.Int("tampered", len(reports)))
		return printJSON(reports)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every entity")
	rootCmd.AddCommand(verifyCmd)
}
