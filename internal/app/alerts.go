package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"price-threshold-alerts/internal/alert"
)

// AlertInput describes a new alert from the command line.
type AlertInput struct {
	Symbol     string
	Above      *float64
	Below      *float64
	Disabled   bool
	SkipLookup bool
}

// AddAlert validates and stores a new alert. The display name is resolved
// from the quote feed when possible; lookup failures are not fatal.
func (a *App) AddAlert(ctx context.Context, in AlertInput) (alert.Alert, error) {
	candidate := alert.Alert{
		Symbol:  alert.NormalizeSymbol(in.Symbol),
		Above:   in.Above,
		Below:   in.Below,
		Enabled: !in.Disabled,
	}
	if err := candidate.Validate(); err != nil {
		return alert.Alert{}, err
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return alert.Alert{}, err
	}
	defer closeStore()

	if !in.SkipLookup {
		sample, ok, err := a.newFetcher().FetchSinglePrice(ctx, candidate.Symbol)
		switch {
		case err != nil:
			a.Logger.Warn().Err(err).Str("symbol", candidate.Symbol).Msg("display name lookup failed")
		case !ok:
			a.Logger.Warn().Str("symbol", candidate.Symbol).Msg("symbol unknown to quote feed")
		default:
			candidate.DisplayName = sample.DisplayName
		}
	}

	created, err := store.CreateAlert(ctx, candidate)
	if err != nil {
		return alert.Alert{}, err
	}
	fmt.Fprintf(a.Out, "created alert %s for %s\n", created.ID, created.Label())
	return created, nil
}

// ListAlerts prints every alert.
func (a *App) ListAlerts(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListAlerts(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts configured")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSymbol\tName\tAbove\tBelow\tEnabled\tLast Above (UTC)\tLast Below (UTC)")
	for _, al := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			al.ID,
			al.Symbol,
			sanitizeInline(al.DisplayName),
			formatThreshold(al.Above),
			formatThreshold(al.Below),
			al.Enabled,
			formatTime(al.LastNotifiedAboveAt),
			formatTime(al.LastNotifiedBelowAt),
		)
	}
	return writer.Flush()
}

// SetAlertEnabled enables or disables an alert.
func (a *App) SetAlertEnabled(ctx context.Context, id string, enabled bool) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(a.Out, "alert %s %s\n", id, state)
	return nil
}

// SetAlertThresholds replaces both thresholds of an alert.
func (a *App) SetAlertThresholds(ctx context.Context, id string, above, below *float64) error {
	if err := alert.ValidateThresholds(above, below); err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.UpdateThresholds(ctx, id, above, below); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "alert %s thresholds: above=%s below=%s\n", id, formatThreshold(above), formatThreshold(below))
	return nil
}

// DeleteAlert removes an alert.
func (a *App) DeleteAlert(ctx context.Context, id string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteAlert(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "alert %s deleted\n", id)
	return nil
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromFloat(*v).String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
