package cli

import (
	"github.com/spf13/cobra"

	"price-threshold-alerts/internal/app"
)

var (
	alertAbove      float64
	alertBelow      float64
	alertDisabled   bool
	alertSkipLookup bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add SYMBOL",
	Short: "Create an alert with an upper and/or lower threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		above, below := thresholdFlags(cmd)
		_, err := getApp().AddAlert(cmd.Context(), app.AlertInput{
			Symbol:     args[0],
			Above:      above,
			Below:      below,
			Disabled:   alertDisabled,
			SkipLookup: alertSkipLookup,
		})
		return err
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context())
	},
}

var alertsEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Resume evaluation of an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetAlertEnabled(cmd.Context(), args[0], true)
	},
}

var alertsDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Pause evaluation of an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetAlertEnabled(cmd.Context(), args[0], false)
	},
}

var alertsSetCmd = &cobra.Command{
	Use:   "set ID",
	Short: "Replace the thresholds of an alert (omitted flags clear that side)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		above, below := thresholdFlags(cmd)
		return getApp().SetAlertThresholds(cmd.Context(), args[0], above, below)
	},
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DeleteAlert(cmd.Context(), args[0])
	},
}

func thresholdFlags(cmd *cobra.Command) (above, below *float64) {
	if cmd.Flags().Changed("above") {
		v := alertAbove
		above = &v
	}
	if cmd.Flags().Changed("below") {
		v := alertBelow
		below = &v
	}
	return above, below
}

func init() {
	for _, c := range []*cobra.Command{alertsAddCmd, alertsSetCmd} {
		c.Flags().Float64Var(&alertAbove, "above", 0, "Notify when price is at or above this value")
		c.Flags().Float64Var(&alertBelow, "below", 0, "Notify when price is at or below this value")
	}
	alertsAddCmd.Flags().BoolVar(&alertDisabled, "disabled", false, "Create the alert paused")
	alertsAddCmd.Flags().BoolVar(&alertSkipLookup, "no-lookup", false, "Do not query the feed for a display name")

	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsEnableCmd, alertsDisableCmd, alertsSetCmd, alertsDeleteCmd)
}
