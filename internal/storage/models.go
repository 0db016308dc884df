package storage

import (
	"time"

	"price-threshold-alerts/internal/alert"
)

// NotificationRecord is the audit row written for every dispatched crossing.
type NotificationRecord struct {
	ID                int64
	AlertID           string
	Symbol            string
	Direction         alert.Direction
	Threshold         float64
	ObservedPrice     float64
	DeliveredChannels []string
	FailedChannels    []string
	CooldownAdvanced  bool
	CreatedAt         time.Time
}
