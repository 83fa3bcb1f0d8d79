package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <entity-id>",
	Short: "Generate correction suggestions for an entity",
	Long: `Propose corrections from provenance: fills for missing required fields,
format normalizations, cross-source value reconciliations, and duplicate
merge candidates. Suggestions are printed, not submitted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		suggestions, err := a.corrections.Suggest(ctx, args[0], a.qcfg)
		if err != nil {
			return eris.Wrap(err, "generate suggestions")
		}
		return printJSON(suggestions)
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
}
