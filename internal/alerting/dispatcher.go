package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/clock"
	"price-threshold-alerts/internal/storage"
)

// CooldownRecorder persists the per-direction cooldown anchor.
type CooldownRecorder interface {
	RecordCooldown(ctx context.Context, alertID string, direction alert.Direction, at time.Time) error
}

// AuditLog receives one record per dispatched crossing.
type AuditLog interface {
	InsertNotification(ctx context.Context, rec storage.NotificationRecord) (storage.NotificationRecord, error)
}

// Options tunes dispatch concurrency.
type Options struct {
	MaxParallel int
	Timeout     time.Duration
	Clock       clock.Clock
}

// Outcome is the delivery result for one crossing.
type Outcome struct {
	Crossing         alert.Crossing
	Delivered        []string
	Failed           []string
	Errors           []error
	CooldownAdvanced bool
}

// Report summarises one Notify call.
type Report struct {
	Outcomes []Outcome
}

// Delivered counts crossings that reached at least one channel.
func (r Report) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if len(o.Delivered) > 0 {
			n++
		}
	}
	return n
}

// Summary renders per-crossing channel outcomes for log lines.
func (r Report) Summary() []string {
	out := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		parts := make([]string, 0, len(o.Delivered)+len(o.Failed))
		for _, name := range o.Delivered {
			parts = append(parts, name+"=ok")
		}
		for _, name := range o.Failed {
			parts = append(parts, name+"=failed")
		}
		if len(parts) == 0 {
			parts = append(parts, "none")
		}
		out = append(out, fmt.Sprintf("%s/%s:%s", o.Crossing.Alert.Symbol, o.Crossing.Direction, strings.Join(parts, ",")))
	}
	return out
}

// Dispatcher fans crossings out to channels and commits cooldowns.
type Dispatcher struct {
	channels []Channel
	store    CooldownRecorder
	audit    AuditLog
	opts     Options
	logger   zerolog.Logger
}

// NewDispatcher builds a dispatcher. store and audit may be nil.
func NewDispatcher(channels []Channel, store CooldownRecorder, audit AuditLog, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Dispatcher{
		channels: channels,
		store:    store,
		audit:    audit,
		opts:     opts,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// ChannelNames lists configured channels in dispatch order.
func (d *Dispatcher) ChannelNames() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify delivers every crossing on every channel, then advances the
// cooldown of each crossing that reached at least one channel. The
// returned error is non-nil only when a cooldown could not be stored.
func (d *Dispatcher) Notify(ctx context.Context, crossings []alert.Crossing) (Report, error) {
	report := Report{Outcomes: make([]Outcome, len(crossings))}
	for i, c := range crossings {
		report.Outcomes[i].Crossing = c
	}
	if len(crossings) == 0 {
		return report, nil
	}

	results := make([][]error, len(crossings))
	for i := range results {
		results[i] = make([]error, len(d.channels))
	}

	if len(d.channels) == 0 {
		d.logger.Warn().Int("crossings", len(crossings)).Msg("no notification channels configured, cooldowns not advanced")
	}

	var g errgroup.Group
	g.SetLimit(d.opts.MaxParallel)
	for i, c := range crossings {
		for j, ch := range d.channels {
			i, j, c, ch := i, j, c, ch
			g.Go(func() error {
				results[i][j] = d.deliver(ctx, ch, c)
				return nil
			})
		}
	}
	_ = g.Wait()

	now := d.opts.Clock.Now()
	var storeErrs []error
	for i, c := range crossings {
		out := &report.Outcomes[i]
		for j, ch := range d.channels {
			if err := results[i][j]; err != nil {
				out.Failed = append(out.Failed, ch.Name())
				out.Errors = append(out.Errors, err)
				continue
			}
			out.Delivered = append(out.Delivered, ch.Name())
		}

		if len(out.Delivered) > 0 && d.store != nil {
			err := d.store.RecordCooldown(ctx, c.Alert.ID, c.Direction, now)
			switch {
			case err == nil:
				out.CooldownAdvanced = true
			case errors.Is(err, storage.ErrNotFound):
				d.logger.Warn().Str("alert_id", c.Alert.ID).Msg("alert removed during cycle, cooldown skipped")
			default:
				storeErrs = append(storeErrs, fmt.Errorf("record cooldown for alert %s (%s): %w", c.Alert.ID, c.Direction, err))
			}
		}

		d.writeAudit(ctx, *out, now)
	}

	return report, errors.Join(storeErrs...)
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, c alert.Crossing) error {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	if err := ch.Deliver(ctx, c); err != nil {
		deliveryErr := &ChannelDeliveryError{
			Channel:   ch.Name(),
			AlertID:   c.Alert.ID,
			Direction: c.Direction,
			Err:       err,
		}
		d.logger.Warn().Err(err).
			Str("channel", ch.Name()).
			Str("alert_id", c.Alert.ID).
			Str("symbol", c.Alert.Symbol).
			Str("direction", string(c.Direction)).
			Msg("notification delivery failed")
		return deliveryErr
	}
	return nil
}

func (d *Dispatcher) writeAudit(ctx context.Context, out Outcome, at time.Time) {
	if d.audit == nil {
		return
	}
	rec := storage.NotificationRecord{
		AlertID:           out.Crossing.Alert.ID,
		Symbol:            out.Crossing.Alert.Symbol,
		Direction:         out.Crossing.Direction,
		Threshold:         out.Crossing.Threshold,
		ObservedPrice:     out.Crossing.ObservedPrice,
		DeliveredChannels: out.Delivered,
		FailedChannels:    out.Failed,
		CooldownAdvanced:  out.CooldownAdvanced,
		CreatedAt:         at,
	}
	if _, err := d.audit.InsertNotification(ctx, rec); err != nil {
		d.logger.Warn().Err(err).Str("alert_id", rec.AlertID).Msg("write notification audit failed")
	}
}
