package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/alerting"
	"price-threshold-alerts/internal/clock"
	"price-threshold-alerts/internal/quotes"
	"price-threshold-alerts/internal/scheduler"
	"price-threshold-alerts/internal/storage"
)

// PriceFetcher resolves current prices for a symbol set.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, symbols []string) ([]quotes.PriceSample, error)
}

// Notifier dispatches the crossings of one cycle.
type Notifier interface {
	Notify(ctx context.Context, crossings []alert.Crossing) (alerting.Report, error)
}

// State is the cycle phase.
type State int32

const (
	Idle State = iota
	Fetching
	Evaluating
	Notifying
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Evaluating:
		return "evaluating"
	case Notifying:
		return "notifying"
	default:
		return "idle"
	}
}

// Options tune cycle behaviour.
type Options struct {
	Cooldown        time.Duration
	AdvisoryLockKey int64
	Clock           clock.Clock
}

// CycleReport describes one RunOnce call.
type CycleReport struct {
	Skipped   bool
	Alerts    int
	Symbols   []string
	Samples   []quotes.PriceSample
	Crossings []alert.Crossing
	Dispatch  alerting.Report
	Duration  time.Duration
}

// Service orchestrates load, fetch, evaluate, and notify.
type Service struct {
	scheduler *scheduler.Scheduler
	store     storage.AlertStore
	fetcher   PriceFetcher
	notifier  Notifier
	locker    storage.AdvisoryLocker
	opts      Options
	logger    zerolog.Logger

	running sync.Mutex
	state   atomic.Int32
}

// New constructs the monitoring service.
func New(sched *scheduler.Scheduler, store storage.AlertStore, fetcher PriceFetcher, notifier Notifier, opts Options, logger zerolog.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		store:     store,
		fetcher:   fetcher,
		notifier:  notifier,
		locker:    locker,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the periodic monitoring loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := s.RunOnce(ctx)
		return err
	})
}

// State reports the current cycle phase.
func (s *Service) State() State {
	return State(s.state.Load())
}

// RunOnce executes a single cycle. A call made while another cycle is in
// flight, or while another process holds the advisory lock, is skipped.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	if !s.running.TryLock() {
		s.logger.Warn().Str("state", s.State().String()).Msg("previous cycle still running, skipping")
		return CycleReport{Skipped: true}, nil
	}
	defer s.running.Unlock()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return CycleReport{}, err
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return CycleReport{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx)
}

func (s *Service) executeCycle(ctx context.Context) (CycleReport, error) {
	start := s.opts.Clock.Now()
	report := CycleReport{}
	defer s.state.Store(int32(Idle))

	s.state.Store(int32(Fetching))
	alerts, err := s.store.LoadEnabledAlerts(ctx)
	if err != nil {
		return report, fmt.Errorf("load enabled alerts: %w", err)
	}
	report.Alerts = len(alerts)
	if len(alerts) == 0 {
		s.logger.Debug().Msg("no enabled alerts, skipping fetch")
		return report, nil
	}

	report.Symbols = lo.Uniq(lo.Map(alerts, func(a alert.Alert, _ int) string {
		return alert.NormalizeSymbol(a.Symbol)
	}))

	samples, err := s.fetcher.FetchPrices(ctx, report.Symbols)
	if err != nil {
		return report, fmt.Errorf("fetch prices: %w", err)
	}
	report.Samples = samples

	s.state.Store(int32(Evaluating))
	report.Crossings = alert.Evaluate(alerts, samples, s.opts.Cooldown, s.opts.Clock.Now())

	s.state.Store(int32(Notifying))
	var notifyErr error
	if len(report.Crossings) > 0 {
		report.Dispatch, notifyErr = s.notifier.Notify(ctx, report.Crossings)
	}
	report.Duration = s.opts.Clock.Now().Sub(start)

	s.logCycle(report, notifyErr)
	if notifyErr != nil {
		return report, fmt.Errorf("notify: %w", notifyErr)
	}
	return report, nil
}

func (s *Service) logCycle(report CycleReport, notifyErr error) {
	prices := zerolog.Dict()
	for _, sample := range report.Samples {
		prices = prices.Float64(sample.Symbol, sample.Price)
	}

	event := s.logger.Info()
	if notifyErr != nil {
		event = s.logger.Error().Err(notifyErr)
	}
	event.Strs("symbols", report.Symbols).
		Dict("prices", prices).
		Int("crossings", len(report.Crossings)).
		Int("delivered", report.Dispatch.Delivered()).
		Strs("deliveries", report.Dispatch.Summary()).
		Dur("duration", report.Duration).
		Msg("cycle complete")
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
