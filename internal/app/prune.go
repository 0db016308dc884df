package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Prune deletes notification audit rows older than the retention window.
func (a *App) Prune(ctx context.Context, opts PruneOptions) (int64, error) {
	cutoff := time.Now().UTC()
	switch {
	case opts.Before != nil:
		cutoff = opts.Before.UTC()
	case opts.OlderThan > 0:
		cutoff = cutoff.Add(-opts.OlderThan)
	case a.Config.Database.Retention > 0:
		cutoff = cutoff.Add(-a.Config.Database.Retention)
	default:
		return 0, errors.New("no retention configured; pass --older-than or --before")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	deleted, err := store.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	a.Logger.Info().Time("cutoff", cutoff).Int64("deleted", deleted).Msg("notification history pruned")
	fmt.Fprintf(a.Out, "deleted %d notification(s) older than %s\n", deleted, cutoff.Format(time.RFC3339))
	return deleted, nil
}
