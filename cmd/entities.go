package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Inspect entities",
}

var (
	entListType   string
	entListActive bool
	entListLimit  int
)

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities with quality scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entities, err := a.store.ListEntities(ctx, store.EntityFilter{
			Type:       model.EntityType(entListType),
			ActiveOnly: entListActive,
			Limit:      entListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list entities")
		}
		return printJSON(entities)
	},
}

var entitiesShowCmd = &cobra.Command{
	Use:   "show <entity-id>",
	Short: "Show one entity with its change history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entity, err := a.store.GetEntity(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get entity")
		}
		history, err := a.store.ListChangeLog(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load change log")
		}
		return printJSON(map[string]any{
			"entity":  entity,
			"history": history,
		})
	},
}

func init() {
	entitiesListCmd.Flags().StringVar(&entListType, "type", "", "filter by entity type")
	entitiesListCmd.Flags().BoolVar(&entListActive, "active", false, "only active entities")
	entitiesListCmd.Flags().IntVar(&entListLimit, "limit", 50, "maximum entities to return")

	entitiesCmd.AddCommand(entitiesListCmd)
	entitiesCmd.AddCommand(entitiesShowCmd)
	rootCmd.AddCommand(entitiesCmd)
}
