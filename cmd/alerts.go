package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate and list quality alerts",
}

var alertsProcessLimit int

var alertsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Evaluate alert rules over all entities and sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.alerts.ProcessBatch(ctx, alertsProcessLimit)
		if err != nil {
			return eris.Wrap(err, "process alerts")
		}
		zap.L().Info("alert batch complete",
			zap.Int("evaluated", summary.Evaluated),
			zap.Int("fired", summary.Fired))
		return printJSON(summary)
	},
}

var (
	alertsListRule       string
	alertsListSubject    string
	alertsListUnresolved bool
	alertsListLimit      int
)

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fired alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		alerts, err := a.store.ListAlerts(ctx, store.AlertFilter{
			RuleName:   alertsListRule,
			SubjectID:  alertsListSubject,
			Unresolved: alertsListUnresolved,
			Limit:      alertsListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list alerts")
		}
		return printJSON(alerts)
	},
}

func init() {
	alertsProcessCmd.Flags().IntVar(&alertsProcessLimit, "limit", 0, "cap the number of entities evaluated")

	alertsListCmd.Flags().StringVar(&alertsListRule, "rule", "", "filter by rule name")
	alertsListCmd.Flags().StringVar(&alertsListSubject, "subject", "", "filter by subject ID")
	alertsListCmd.Flags().BoolVar(&alertsListUnresolved, "unresolved", false, "only unresolved alerts")
	alertsListCmd.Flags().IntVar(&alertsListLimit, "limit", 50, "maximum alerts to return")

	alertsCmd.AddCommand(alertsProcessCmd)
	alertsCmd.AddCommand(alertsListCmd)
	rootCmd.AddCommand(alertsCmd)
}
