package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

var (
	processType  string
	processLimit int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the full quality pipeline over entities",
	Long: `Score, alert on, and auto-correct every active entity. Auto-correction
submits generated suggestions and applies the ones whose validation
confidence clears the configured gate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.pipeline.RunBatch(ctx, store.EntityFilter{
			Type:       model.EntityType(processType),
			ActiveOnly: true,
			Limit:      processLimit,
		})
		if err != nil {
			return eris.Wrap(err, "run batch")
		}
		return printJSON(summary)
	},
}

func init() {
	processCmd.Flags().StringVar(&processType, "type", "", "only process entities of this type")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "cap the number of entities processed")
	rootCmd.AddCommand(processCmd)
}
