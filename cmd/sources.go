package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect data sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List data sources with reliability scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sources, err := a.store.ListSources(ctx)
		if err != nil {
			return eris.Wrap(err, "list sources")
		}
		return printJSON(sources)
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	rootCmd.AddCommand(sourcesCmd)
}
