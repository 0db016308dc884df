package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-threshold-alerts/internal/alert"
)

//go:embed schema.sql
var schemaSQL string

const (
	alertColumns = `id,
        symbol,
        display_name,
        above_threshold::text,
        below_threshold::text,
        enabled,
        last_notified_above_at,
        last_notified_below_at,
        created_at,
        updated_at`

	loadEnabledAlertsSQL = `SELECT ` + alertColumns + `
    FROM price_alerts
    WHERE enabled = TRUE
    ORDER BY created_at, id;`

	listAlertsSQL = `SELECT ` + alertColumns + `
    FROM price_alerts
    ORDER BY symbol, created_at;`

	getAlertSQL = `SELECT ` + alertColumns + `
    FROM price_alerts
    WHERE id = $1;`

	insertAlertSQL = `INSERT INTO price_alerts (
        id,
        symbol,
        display_name,
        above_threshold,
        below_threshold,
        enabled
    ) VALUES (
        $1,$2,$3,$4::numeric,$5::numeric,$6
    )
    RETURNING ` + alertColumns + `;`

	recordAboveCooldownSQL = `UPDATE price_alerts
    SET last_notified_above_at = $2, updated_at = now()
    WHERE id = $1;`

	recordBelowCooldownSQL = `UPDATE price_alerts
    SET last_notified_below_at = $2, updated_at = now()
    WHERE id = $1;`

	setEnabledSQL = `UPDATE price_alerts
    SET enabled = $2, updated_at = now()
    WHERE id = $1;`

	updateThresholdsSQL = `UPDATE price_alerts
    SET above_threshold = $2::numeric, below_threshold = $3::numeric, updated_at = now()
    WHERE id = $1;`

	deleteAlertSQL = `DELETE FROM price_alerts WHERE id = $1;`

	notificationColumns = `id,
        alert_id,
        symbol,
        direction,
        threshold::text,
        observed_price::text,
        delivered_channels,
        failed_channels,
        cooldown_advanced,
        created_at`

	insertNotificationSQL = `INSERT INTO alert_notifications (
        alert_id,
        symbol,
        direction,
        threshold,
        observed_price,
        delivered_channels,
        failed_channels,
        cooldown_advanced
    ) VALUES (
        $1,$2,$3,$4::numeric,$5::numeric,$6,$7,$8
    )
    RETURNING ` + notificationColumns + `;`

	listRecentNotificationsSQL = `SELECT ` + notificationColumns + `
    FROM alert_notifications
    ORDER BY created_at DESC
    LIMIT $1;`

	listNotificationsBetweenSQL = `SELECT ` + notificationColumns + `
    FROM alert_notifications
    WHERE ($1 = '' OR symbol = $1)
      AND created_at >= $2
      AND created_at < $3
    ORDER BY created_at;`

	deleteNotificationsBeforeSQL = `DELETE FROM alert_notifications WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return wrapErr("ensure schema", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return wrapErr("ensure schema", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the conn is closed
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// LoadEnabledAlerts returns every alert taking part in evaluation.
func (s *Store) LoadEnabledAlerts(ctx context.Context) ([]alert.Alert, error) {
	alerts, err := s.queryAlerts(ctx, loadEnabledAlertsSQL)
	return alerts, wrapErr("load enabled alerts", err)
}

// ListAlerts returns every alert regardless of state.
func (s *Store) ListAlerts(ctx context.Context) ([]alert.Alert, error) {
	alerts, err := s.queryAlerts(ctx, listAlertsSQL)
	return alerts, wrapErr("list alerts", err)
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]alert.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]alert.Alert, 0)
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// GetAlert loads one alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (alert.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return alert.Alert{}, wrapErr("get alert", err)
	}
	a, err := scanAlert(pool.QueryRow(ctx, getAlertSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return alert.Alert{}, wrapErr("get alert", ErrNotFound)
	}
	return a, wrapErr("get alert", err)
}

// CreateAlert inserts a new alert, assigning an id when empty.
func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return alert.Alert{}, wrapErr("create alert", err)
	}
	a.Symbol = alert.NormalizeSymbol(a.Symbol)
	if err := a.Validate(); err != nil {
		return alert.Alert{}, wrapErr("create alert", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	created, err := scanAlert(pool.QueryRow(ctx, insertAlertSQL,
		a.ID,
		a.Symbol,
		a.DisplayName,
		numericArg(a.Above),
		numericArg(a.Below),
		a.Enabled,
	))
	return created, wrapErr("create alert", err)
}

// RecordCooldown stamps the last successful notification time for one direction.
func (s *Store) RecordCooldown(ctx context.Context, alertID string, direction alert.Direction, at time.Time) error {
	var query string
	switch direction {
	case alert.Above:
		query = recordAboveCooldownSQL
	case alert.Below:
		query = recordBelowCooldownSQL
	default:
		return wrapErr("record cooldown", fmt.Errorf("unknown direction %q", direction))
	}
	return wrapErr("record cooldown", s.execOne(ctx, query, alertID, at.UTC()))
}

// SetEnabled toggles evaluation of an alert.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return wrapErr("set enabled", s.execOne(ctx, setEnabledSQL, id, enabled))
}

// UpdateThresholds replaces both thresholds.
func (s *Store) UpdateThresholds(ctx context.Context, id string, above, below *float64) error {
	if err := alert.ValidateThresholds(above, below); err != nil {
		return wrapErr("update thresholds", err)
	}
	return wrapErr("update thresholds", s.execOne(ctx, updateThresholdsSQL, id, numericArg(above), numericArg(below)))
}

// DeleteAlert removes an alert; its notification history is retained.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	return wrapErr("delete alert", s.execOne(ctx, deleteAlertSQL, id))
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertNotification persists a dispatch audit row.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, wrapErr("insert notification", err)
	}

	row := pool.QueryRow(ctx, insertNotificationSQL,
		rec.AlertID,
		rec.Symbol,
		string(rec.Direction),
		decimal.NewFromFloat(rec.Threshold).String(),
		decimal.NewFromFloat(rec.ObservedPrice).String(),
		nonNil(rec.DeliveredChannels),
		nonNil(rec.FailedChannels),
		rec.CooldownAdvanced,
	)
	saved, err := scanNotification(row)
	return saved, wrapErr("insert notification", err)
}

// ListRecentNotifications lists the newest audit rows first.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	recs, err := s.queryNotifications(ctx, listRecentNotificationsSQL, limit)
	return recs, wrapErr("list recent notifications", err)
}

// ListNotificationsBetween lists audit rows in [from, to); empty symbol matches all.
func (s *Store) ListNotificationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]NotificationRecord, error) {
	recs, err := s.queryNotifications(ctx, listNotificationsBetweenSQL, alert.NormalizeSymbol(symbol), from, to)
	return recs, wrapErr("list notifications between", err)
}

// DeleteNotificationsBefore prunes audit history.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, wrapErr("delete notifications before", err)
	}
	tag, err := pool.Exec(ctx, deleteNotificationsBeforeSQL, olderThan)
	if err != nil {
		return 0, wrapErr("delete notifications before", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...any) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := make([]NotificationRecord, 0)
	for rows.Next() {
		rec, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

func scanAlert(row pgx.Row) (alert.Alert, error) {
	var (
		a        alert.Alert
		aboveStr *string
		belowStr *string
	)
	if err := row.Scan(
		&a.ID,
		&a.Symbol,
		&a.DisplayName,
		&aboveStr,
		&belowStr,
		&a.Enabled,
		&a.LastNotifiedAboveAt,
		&a.LastNotifiedBelowAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return alert.Alert{}, err
	}

	var err error
	if a.Above, err = parseNumeric(aboveStr); err != nil {
		return alert.Alert{}, fmt.Errorf("parse above threshold: %w", err)
	}
	if a.Below, err = parseNumeric(belowStr); err != nil {
		return alert.Alert{}, fmt.Errorf("parse below threshold: %w", err)
	}
	return a, nil
}

func scanNotification(row pgx.Row) (NotificationRecord, error) {
	var (
		rec          NotificationRecord
		direction    string
		thresholdStr string
		observedStr  string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.AlertID,
		&rec.Symbol,
		&direction,
		&thresholdStr,
		&observedStr,
		&rec.DeliveredChannels,
		&rec.FailedChannels,
		&rec.CooldownAdvanced,
		&rec.CreatedAt,
	); err != nil {
		return NotificationRecord{}, err
	}
	rec.Direction = alert.Direction(direction)

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("parse threshold: %w", err)
	}
	observed, err := decimal.NewFromString(observedStr)
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("parse observed price: %w", err)
	}
	rec.Threshold = threshold.InexactFloat64()
	rec.ObservedPrice = observed.InexactFloat64()
	return rec, nil
}

func parseNumeric(v *string) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil, err
	}
	f := d.InexactFloat64()
	return &f, nil
}

func numericArg(v *float64) any {
	if v == nil {
		return nil
	}
	return decimal.NewFromFloat(*v).String()
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

var (
	_ Backend        = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
