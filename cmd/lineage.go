package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage <entity-id> [field]",
	Short: "Show field provenance lineage",
	Long: `Print the provenance chain for an entity, newest first: every recorded
value, the source it came from, and the source's current reliability.
A field name narrows the output to that field.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		field := ""
		if len(args) == 2 {
			field = args[1]
		}
		entries, err := a.ledger.Lineage(ctx, args[0], field)
		if err != nil {
			return eris.Wrap(err, "load lineage")
		}
		return printJSON(entries)
	},
}

func init() {
	rootCmd.AddCommand(lineageCmd)
}
