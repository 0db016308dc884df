package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/config"
)

// AlertStore is what the monitoring cycle needs from persistence.
type AlertStore interface {
	LoadEnabledAlerts(ctx context.Context) ([]alert.Alert, error)
	RecordCooldown(ctx context.Context, alertID string, direction alert.Direction, at time.Time) error
}

// AlertManager covers user-driven alert lifecycle operations.
type AlertManager interface {
	CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	GetAlert(ctx context.Context, id string) (alert.Alert, error)
	ListAlerts(ctx context.Context) ([]alert.Alert, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	UpdateThresholds(ctx context.Context, id string, above, below *float64) error
	DeleteAlert(ctx context.Context, id string) error
}

// NotificationLog stores the dispatch audit trail.
type NotificationLog interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
	ListNotificationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]NotificationRecord, error)
	DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend is a complete storage implementation.
type Backend interface {
	AlertStore
	AlertManager
	NotificationLog
	EnsureSchema(ctx context.Context) error
	Close()
}

// Open selects a backend by driver name.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewStore(pool), nil
	case "sqlite":
		return OpenSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
