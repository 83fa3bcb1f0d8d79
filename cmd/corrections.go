package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridata/quality-cli/internal/correction"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Manage the correction review queue",
}

var (
	corrListEntity   string
	corrListStatuses string
	corrListLimit    int
)

var correctionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List corrections",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		filter := store.CorrectionFilter{
			EntityID: corrListEntity,
			Limit:    corrListLimit,
		}
		if corrListStatuses != "" {
			for _, s := range strings.Split(corrListStatuses, ",") {
				filter.Statuses = append(filter.Statuses, model.CorrectionStatus(strings.TrimSpace(s)))
			}
		}

		corrections, err := a.store.ListCorrections(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list corrections")
		}
		return printJSON(corrections)
	},
}

var (
	corrSubmitEntity    string
	corrSubmitField     string
	corrSubmitValue     string
	corrSubmitType      string
	corrSubmitBy        string
	corrSubmitMerge     string
	corrSubmitAutoApply bool
)

var correctionsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a correction for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.corrections.Submit(ctx, correction.SubmitRequest{
			EntityID:       corrSubmitEntity,
			FieldName:      corrSubmitField,
			SuggestedValue: corrSubmitValue,
			Type:           model.CorrectionType(corrSubmitType),
			SubmittedBy:    corrSubmitBy,
			MergeTargetID:  corrSubmitMerge,
			AutoApply:      corrSubmitAutoApply,
		})
		if err != nil {
			return eris.Wrap(err, "submit correction")
		}
		return printJSON(c)
	},
}

var (
	corrReviewBy    string
	corrReviewNotes string
)

var correctionsReviewCmd = &cobra.Command{
	Use:   "review <correction-id> <approve|reject>",
	Short: "Approve or reject a pending correction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.corrections.Review(ctx, args[0], corrReviewBy, args[1], corrReviewNotes)
		if err != nil {
			return eris.Wrap(err, "review correction")
		}
		return printJSON(c)
	},
}

var corrApplyBy string

var correctionsApplyCmd = &cobra.Command{
	Use:   "apply <correction-id>",
	Short: "Apply an approved correction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.corrections.Apply(ctx, args[0], corrApplyBy)
		if err != nil {
			return eris.Wrap(err, "apply correction")
		}
		return printJSON(entry)
	},
}

func init() {
	correctionsListCmd.Flags().StringVar(&corrListEntity, "entity", "", "filter by entity ID")
	correctionsListCmd.Flags().StringVar(&corrListStatuses, "status", "", "comma-separated status filter (pending,approved,rejected,applied,superseded)")
	correctionsListCmd.Flags().IntVar(&corrListLimit, "limit", 50, "maximum corrections to return")

	correctionsSubmitCmd.Flags().StringVar(&corrSubmitEntity, "entity", "", "entity ID (required)")
	correctionsSubmitCmd.Flags().StringVar(&corrSubmitField, "field", "", "field name")
	correctionsSubmitCmd.Flags().StringVar(&corrSubmitValue, "value", "", "suggested value")
	correctionsSubmitCmd.Flags().StringVar(&corrSubmitType, "type", string(model.CorrectionFixValue), "correction type")
	correctionsSubmitCmd.Flags().StringVar(&corrSubmitBy, "by", "cli", "submitter identity")
	correctionsSubmitCmd.Flags().StringVar(&corrSubmitMerge, "merge-target", "", "duplicate entity ID for merge_entities corrections")
	correctionsSubmitCmd.Flags().BoolVar(&corrSubmitAutoApply, "auto-apply", false, "apply immediately when confidence clears the gate")
	_ = correctionsSubmitCmd.MarkFlagRequired("entity")

	correctionsReviewCmd.Flags().StringVar(&corrReviewBy, "by", "cli", "reviewer identity")
	correctionsReviewCmd.Flags().StringVar(&corrReviewNotes, "notes", "", "review notes")

	correctionsApplyCmd.Flags().StringVar(&corrApplyBy, "by", "cli", "applier identity")

	correctionsCmd.AddCommand(correctionsListCmd)
	correctionsCmd.AddCommand(correctionsSubmitCmd)
	correctionsCmd.AddCommand(correctionsReviewCmd)
	correctionsCmd.AddCommand(correctionsApplyCmd)
	rootCmd.AddCommand(correctionsCmd)
}
