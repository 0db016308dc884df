package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	RunOnStart   bool
}

// Scheduler drives a single worker loop; ticks never overlap.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks until ctx is cancelled. The first tick fires right after the
// startup delay when RunOnStart is set. A tick that outlasts the interval
// delays the next one and missed ticks are dropped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := time.Now()
	if !s.opts.RunOnStart {
		next = next.Add(s.opts.Interval)
	}

	for {
		if delay := time.Until(next); delay > 0 {
			s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
			if err := wait(ctx, delay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		at := time.Now().UTC()
		s.logger.Debug().Time("tick", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
		}

		next = s.advance(next, time.Now())
	}
}

func (s *Scheduler) advance(prev, now time.Time) time.Time {
	next := prev.Add(s.opts.Interval)
	if next.After(now) {
		return next
	}
	missed := int64(now.Sub(next)/s.opts.Interval) + 1
	s.logger.Warn().Int64("missed", missed).Dur("interval", s.opts.Interval).Msg("tick overran interval, skipping missed ticks")
	return next.Add(time.Duration(missed) * s.opts.Interval)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
