package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/app"
)

var (
	simulateDirection string
	simulateThreshold float64
	simulatePrice     float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert SYMBOL",
	Short: "Send a synthetic crossing through every enabled channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateThreshold <= 0 || simulatePrice <= 0 {
			return errors.New("--threshold and --price must be greater than zero")
		}
		direction, err := alert.ParseDirection(simulateDirection)
		if err != nil {
			return err
		}

		_, err = getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Symbol:    args[0],
			Direction: direction,
			Threshold: simulateThreshold,
			Price:     simulatePrice,
		})
		return err
	},
}

func parseDurationFlag(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--%s must be positive", name)
	}
	return d, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", "above", "Crossing direction: above or below")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold", 0, "Threshold that was crossed")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Observed price")
}
