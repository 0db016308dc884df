package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the most recent notification audit rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	records, err := store.ListRecentNotifications(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tDirection\tThreshold\tPrice\tDelivered\tFailed\tCooldown")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Symbol,
			rec.Direction,
			formatFloat(rec.Threshold),
			formatFloat(rec.ObservedPrice),
			joinOrDash(rec.DeliveredChannels),
			joinOrDash(rec.FailedChannels),
			rec.CooldownAdvanced,
		)
	}

	return writer.Flush()
}

func joinOrDash(v []string) string {
	if len(v) == 0 {
		return "-"
	}
	return strings.Join(v, ",")
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
