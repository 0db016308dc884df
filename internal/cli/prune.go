package cli

import (
	"github.com/spf13/cobra"

	"price-threshold-alerts/internal/app"
)

var (
	pruneBefore    string
	pruneOlderThan string
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old notification history",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PruneOptions{}

		var err error
		if opts.Before, err = parseTimeFlag("before", pruneBefore); err != nil {
			return err
		}
		if pruneOlderThan != "" {
			if opts.OlderThan, err = parseDurationFlag("older-than", pruneOlderThan); err != nil {
				return err
			}
		}

		_, err = getApp().Prune(cmd.Context(), opts)
		return err
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneBefore, "before", "", "Delete notifications created before this timestamp (RFC3339)")
	pruneCmd.Flags().StringVar(&pruneOlderThan, "older-than", "", "Delete notifications older than this duration (e.g. 720h)")
}
