package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-threshold-alerts/internal/alert"
)

// Channel delivers one crossing to one destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, crossing alert.Crossing) error
}

// ChannelDeliveryError records a failed delivery attempt.
type ChannelDeliveryError struct {
	Channel   string
	AlertID   string
	Direction alert.Direction
	Err       error
}

func (e *ChannelDeliveryError) Error() string {
	return fmt.Sprintf("deliver alert %s (%s) via %s: %v", e.AlertID, e.Direction, e.Channel, e.Err)
}

func (e *ChannelDeliveryError) Unwrap() error { return e.Err }

// Event is the JSON document published by machine-facing channels.
type Event struct {
	AlertID       string          `json:"alert_id"`
	Symbol        string          `json:"symbol"`
	DisplayName   string          `json:"display_name,omitempty"`
	Direction     alert.Direction `json:"direction"`
	Threshold     decimal.Decimal `json:"threshold"`
	ObservedPrice decimal.Decimal `json:"observed_price"`
	TriggeredAt   time.Time       `json:"triggered_at"`
}

// NewEvent converts a crossing into its published form.
func NewEvent(c alert.Crossing, at time.Time) Event {
	return Event{
		AlertID:       c.Alert.ID,
		Symbol:        c.Alert.Symbol,
		DisplayName:   c.Alert.DisplayName,
		Direction:     c.Direction,
		Threshold:     decimal.NewFromFloat(c.Threshold),
		ObservedPrice: decimal.NewFromFloat(c.ObservedPrice),
		TriggeredAt:   at.UTC(),
	}
}

// Subject is the one-line summary used for e-mail subjects and SMS.
func Subject(c alert.Crossing) string {
	return fmt.Sprintf("%s %s %s", c.Alert.Symbol, c.Direction, decimal.NewFromFloat(c.Threshold).String())
}

// RenderMessage builds the human readable notification text.
func RenderMessage(c alert.Crossing) string {
	threshold := decimal.NewFromFloat(c.Threshold)
	observed := decimal.NewFromFloat(c.ObservedPrice)

	builder := strings.Builder{}
	builder.WriteString("[Price Alert]\n")
	builder.WriteString(fmt.Sprintf("Instrument: %s\n", c.Alert.Label()))
	builder.WriteString(fmt.Sprintf("Price: %s\n", observed.String()))
	switch c.Direction {
	case alert.Above:
		builder.WriteString(fmt.Sprintf("Crossed above %s\n", threshold.String()))
	case alert.Below:
		builder.WriteString(fmt.Sprintf("Crossed below %s\n", threshold.String()))
	}
	if !threshold.IsZero() {
		pct := observed.Sub(threshold).Div(threshold).Mul(decimal.NewFromInt(100))
		builder.WriteString(fmt.Sprintf("Distance: %s%%\n", pct.StringFixed(2)))
	}
	return builder.String()
}
