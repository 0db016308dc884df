package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"price-threshold-alerts/internal/alert"
)

type alertRow struct {
	ID                  string `gorm:"primaryKey"`
	Symbol              string `gorm:"index;not null"`
	DisplayName         string
	AboveThreshold      *float64
	BelowThreshold      *float64
	Enabled             bool `gorm:"index;not null"`
	LastNotifiedAboveAt *time.Time
	LastNotifiedBelowAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (alertRow) TableName() string { return "price_alerts" }

type notificationRow struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	AlertID           string `gorm:"index;not null"`
	Symbol            string `gorm:"index:alert_notifications_symbol_ts_idx,priority:1;not null"`
	Direction         string `gorm:"not null"`
	Threshold         float64
	ObservedPrice     float64
	DeliveredChannels []string  `gorm:"serializer:json"`
	FailedChannels    []string  `gorm:"serializer:json"`
	CooldownAdvanced  bool
	CreatedAt         time.Time `gorm:"index:alert_notifications_symbol_ts_idx,priority:2"`
}

func (notificationRow) TableName() string { return "alert_notifications" }

// GormStore is the embedded SQLite backend for single-node deployments.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewGormStore(db), nil
}

// NewGormStore wraps an existing gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureSchema migrates the alert and notification tables.
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	return wrapErr("ensure schema", s.db.WithContext(ctx).AutoMigrate(&alertRow{}, &notificationRow{}))
}

// Close releases the underlying sql.DB.
func (s *GormStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *GormStore) LoadEnabledAlerts(ctx context.Context) ([]alert.Alert, error) {
	var rows []alertRow
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, wrapErr("load enabled alerts", err)
	}
	return toAlerts(rows), nil
}

func (s *GormStore) ListAlerts(ctx context.Context) ([]alert.Alert, error) {
	var rows []alertRow
	err := s.db.WithContext(ctx).Order("symbol, created_at").Find(&rows).Error
	if err != nil {
		return nil, wrapErr("list alerts", err)
	}
	return toAlerts(rows), nil
}

func (s *GormStore) GetAlert(ctx context.Context, id string) (alert.Alert, error) {
	var row alertRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return alert.Alert{}, wrapErr("get alert", ErrNotFound)
	}
	if err != nil {
		return alert.Alert{}, wrapErr("get alert", err)
	}
	return row.toAlert(), nil
}

func (s *GormStore) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	a.Symbol = alert.NormalizeSymbol(a.Symbol)
	if err := a.Validate(); err != nil {
		return alert.Alert{}, wrapErr("create alert", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := alertRow{
		ID:             a.ID,
		Symbol:         a.Symbol,
		DisplayName:    a.DisplayName,
		AboveThreshold: a.Above,
		BelowThreshold: a.Below,
		Enabled:        a.Enabled,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return alert.Alert{}, wrapErr("create alert", err)
	}
	return row.toAlert(), nil
}

func (s *GormStore) RecordCooldown(ctx context.Context, alertID string, direction alert.Direction, at time.Time) error {
	var column string
	switch direction {
	case alert.Above:
		column = "last_notified_above_at"
	case alert.Below:
		column = "last_notified_below_at"
	default:
		return wrapErr("record cooldown", fmt.Errorf("unknown direction %q", direction))
	}
	at = at.UTC()
	return wrapErr("record cooldown", s.updateOne(ctx, alertID, map[string]any{column: &at}))
}

func (s *GormStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return wrapErr("set enabled", s.updateOne(ctx, id, map[string]any{"enabled": enabled}))
}

func (s *GormStore) UpdateThresholds(ctx context.Context, id string, above, below *float64) error {
	if err := alert.ValidateThresholds(above, below); err != nil {
		return wrapErr("update thresholds", err)
	}
	return wrapErr("update thresholds", s.updateOne(ctx, id, map[string]any{
		"above_threshold": above,
		"below_threshold": below,
	}))
}

func (s *GormStore) DeleteAlert(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&alertRow{})
	if res.Error != nil {
		return wrapErr("delete alert", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrapErr("delete alert", ErrNotFound)
	}
	return nil
}

func (s *GormStore) updateOne(ctx context.Context, id string, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&alertRow{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	row := notificationRow{
		AlertID:           rec.AlertID,
		Symbol:            rec.Symbol,
		Direction:         string(rec.Direction),
		Threshold:         rec.Threshold,
		ObservedPrice:     rec.ObservedPrice,
		DeliveredChannels: nonNil(rec.DeliveredChannels),
		FailedChannels:    nonNil(rec.FailedChannels),
		CooldownAdvanced:  rec.CooldownAdvanced,
		CreatedAt:         rec.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return NotificationRecord{}, wrapErr("insert notification", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	var rows []notificationRow
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrapErr("list recent notifications", err)
	}
	return toRecords(rows), nil
}

func (s *GormStore) ListNotificationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]NotificationRecord, error) {
	q := s.db.WithContext(ctx).Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC())
	if symbol = alert.NormalizeSymbol(symbol); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []notificationRow
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, wrapErr("list notifications between", err)
	}
	return toRecords(rows), nil
}

func (s *GormStore) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", olderThan.UTC()).Delete(&notificationRow{})
	if res.Error != nil {
		return 0, wrapErr("delete notifications before", res.Error)
	}
	return res.RowsAffected, nil
}

func (r alertRow) toAlert() alert.Alert {
	return alert.Alert{
		ID:                  r.ID,
		Symbol:              r.Symbol,
		DisplayName:         r.DisplayName,
		Above:               r.AboveThreshold,
		Below:               r.BelowThreshold,
		Enabled:             r.Enabled,
		LastNotifiedAboveAt: r.LastNotifiedAboveAt,
		LastNotifiedBelowAt: r.LastNotifiedBelowAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toAlerts(rows []alertRow) []alert.Alert {
	out := make([]alert.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAlert())
	}
	return out
}

func (r notificationRow) toRecord() NotificationRecord {
	return NotificationRecord{
		ID:                r.ID,
		AlertID:           r.AlertID,
		Symbol:            r.Symbol,
		Direction:         alert.Direction(r.Direction),
		Threshold:         r.Threshold,
		ObservedPrice:     r.ObservedPrice,
		DeliveredChannels: r.DeliveredChannels,
		FailedChannels:    r.FailedChannels,
		CooldownAdvanced:  r.CooldownAdvanced,
		CreatedAt:         r.CreatedAt,
	}
}

func toRecords(rows []notificationRow) []NotificationRecord {
	out := make([]NotificationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out
}

var _ Backend = (*GormStore)(nil)
