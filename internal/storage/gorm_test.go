package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-threshold-alerts/internal/alert"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func ptr(v float64) *float64 { return &v }

func TestGormStoreAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	created, err := store.CreateAlert(ctx, alert.Alert{Symbol: " btcusdt ", Above: ptr(70000), Enabled: true})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "BTCUSDT", created.Symbol)

	_, err = store.CreateAlert(ctx, alert.Alert{Symbol: "ETHUSDT", Below: ptr(2000), Enabled: false})
	require.NoError(t, err)

	enabled, err := store.LoadEnabledAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, created.ID, enabled[0].ID)
	assert.Nil(t, enabled[0].Below)

	all, err := store.ListAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.UpdateThresholds(ctx, created.ID, nil, ptr(60000)))
	got, err := store.GetAlert(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Above)
	require.NotNil(t, got.Below)
	assert.Equal(t, 60000.0, *got.Below)

	require.NoError(t, store.SetEnabled(ctx, created.ID, false))
	enabled, err = store.LoadEnabledAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	require.NoError(t, store.DeleteAlert(ctx, created.ID))
	_, err = store.GetAlert(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrStore)
}

func TestGormStoreRejectsAlertWithoutThreshold(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.CreateAlert(context.Background(), alert.Alert{Symbol: "AAPL", Enabled: true})
	assert.ErrorIs(t, err, alert.ErrNoThreshold)

	err = store.UpdateThresholds(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, alert.ErrNoThreshold)
}

func TestGormStoreRecordCooldownPerDirection(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	a, err := store.CreateAlert(ctx, alert.Alert{Symbol: "AAPL", Above: ptr(200), Below: ptr(150), Enabled: true})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordCooldown(ctx, a.ID, alert.Above, at))

	got, err := store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastNotifiedAboveAt)
	assert.True(t, got.LastNotifiedAboveAt.Equal(at))
	assert.Nil(t, got.LastNotifiedBelowAt)

	err = store.RecordCooldown(ctx, "missing", alert.Below, at)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGormStoreNotifications(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, sym := range []string{"AAPL", "MSFT", "AAPL"} {
		_, err := store.InsertNotification(ctx, NotificationRecord{
			AlertID:           "a-" + sym,
			Symbol:            sym,
			Direction:         alert.Above,
			Threshold:         100,
			ObservedPrice:     101.5,
			DeliveredChannels: []string{"telegram"},
			FailedChannels:    []string{"email"},
			CooldownAdvanced:  true,
			CreatedAt:         base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	recent, err := store.ListRecentNotifications(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "AAPL", recent[0].Symbol)
	assert.Equal(t, []string{"telegram"}, recent[0].DeliveredChannels)
	assert.Equal(t, []string{"email"}, recent[0].FailedChannels)

	between, err := store.ListNotificationsBetween(ctx, "aapl", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, between, 2)

	between, err = store.ListNotificationsBetween(ctx, "", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, between, 2)

	deleted, err := store.DeleteNotificationsBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
