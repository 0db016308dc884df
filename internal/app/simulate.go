package app

import (
	"context"
	"errors"
	"fmt"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/alerting"
)

// SimulateOptions describe a synthetic crossing.
type SimulateOptions struct {
	Symbol    string
	Direction alert.Direction
	Threshold float64
	Price     float64
}

// SimulateAlert pushes a synthetic crossing through every configured
// channel. No cooldown or audit row is written.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) (alerting.Report, error) {
	threshold := opts.Threshold
	candidate := alert.Alert{
		ID:          "simulated",
		Symbol:      alert.NormalizeSymbol(opts.Symbol),
		DisplayName: "simulation",
		Enabled:     true,
	}
	switch opts.Direction {
	case alert.Above:
		candidate.Above = &threshold
	case alert.Below:
		candidate.Below = &threshold
	default:
		return alerting.Report{}, fmt.Errorf("unknown direction %q", opts.Direction)
	}
	if err := candidate.Validate(); err != nil {
		return alerting.Report{}, err
	}

	channels, closeChannels, err := a.newChannels()
	if err != nil {
		return alerting.Report{}, err
	}
	defer closeChannels()
	if len(channels) == 0 {
		return alerting.Report{}, errors.New("no notification channels enabled")
	}

	crossing := alert.Crossing{
		Alert:         candidate,
		ObservedPrice: opts.Price,
		Direction:     opts.Direction,
		Threshold:     threshold,
	}

	dispatcher := alerting.NewDispatcher(channels, nil, nil, alerting.Options{
		MaxParallel: a.Config.Alerting.MaxParallel,
		Timeout:     a.Config.Alerting.Timeout,
	}, a.Logger)

	report, err := dispatcher.Notify(ctx, []alert.Crossing{crossing})
	if err != nil {
		return report, err
	}
	for _, line := range report.Summary() {
		fmt.Fprintln(a.Out, line)
	}
	if report.Delivered() == 0 {
		return report, errors.New("simulated alert was not delivered on any channel")
	}
	return report, nil
}
