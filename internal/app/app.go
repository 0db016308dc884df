package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/alerting"
	"price-threshold-alerts/internal/config"
	"price-threshold-alerts/internal/quotes"
	"price-threshold-alerts/internal/scheduler"
	"price-threshold-alerts/internal/service"
	"price-threshold-alerts/internal/storage"
)

var errNoDatabase = errors.New("database.dsn not configured")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFeed() quotes.Feed {
	cfg := a.Config.Quotes
	if strings.EqualFold(cfg.Provider, "binance") {
		return quotes.NewBinanceFeed(quotes.BinanceOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.BinanceAPIKey,
			SecretKey: cfg.BinanceSecret,
			Timeout:   cfg.RequestTimeout,
		}, a.Logger)
	}
	return quotes.NewYahooFeed(quotes.YahooOptions{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newFetcher() *quotes.Fetcher {
	cfg := a.Config.Quotes
	return quotes.NewFetcher(a.newFeed(), quotes.FetcherOptions{
		CacheTTL:     cfg.CacheTTL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, a.Logger)
}

// newChannels builds every enabled channel. The returned closer releases
// broker connections.
func (a *App) newChannels() ([]alerting.Channel, func(), error) {
	cfg := a.Config.Alerting
	var (
		channels []alerting.Channel
		closers  []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Telegram.Enabled {
		channels = append(channels, alerting.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Email.Enabled {
		opts := alerting.EmailOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			TLS:      cfg.Email.TLS,
			Timeout:  cfg.Timeout,
		}
		client, err := alerting.NewSMTPClient(opts)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		channels = append(channels, alerting.NewEmailChannel(client, opts.From, opts.To, a.Logger))
	}
	if cfg.SMS.Enabled {
		channels = append(channels, alerting.NewSMSChannel(alerting.SMSOptions{
			BaseURL:    cfg.SMS.APIBase,
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			From:       cfg.SMS.From,
			To:         cfg.SMS.To,
			Timeout:    cfg.Timeout,
		}, a.Logger))
	}
	if cfg.Webhook.Enabled {
		channels = append(channels, alerting.NewWebhookChannel(cfg.Webhook.URLs, cfg.Webhook.Headers, cfg.Timeout, nil, a.Logger))
	}
	if cfg.NATS.Enabled {
		nc, err := alerting.ConnectNATS(cfg.NATS.URL, a.Logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = nc.Drain() })
		channels = append(channels, alerting.NewNATSChannel(nc, cfg.NATS.Subject, nil, a.Logger))
	}
	if cfg.Redis.Enabled {
		rdb := alerting.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		closers = append(closers, func() { _ = rdb.Close() })
		channels = append(channels, alerting.NewRedisChannel(rdb, cfg.Redis.Channel, nil, a.Logger))
	}

	return channels, closeAll, nil
}

func (a *App) openStore(ctx context.Context) (storage.Backend, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(a.Config.Database.Driver, "sqlite") {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}

func (a *App) requireStore(ctx context.Context) (storage.Backend, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errNoDatabase
	}
	return store, closeStore, nil
}

func (a *App) newService(store storage.Backend, channels []alerting.Channel, sched *scheduler.Scheduler) *service.Service {
	dispatcher := alerting.NewDispatcher(channels, store, store, alerting.Options{
		MaxParallel: a.Config.Alerting.MaxParallel,
		Timeout:     a.Config.Alerting.Timeout,
	}, a.Logger)

	return service.New(sched, store, a.newFetcher(), dispatcher, service.Options{
		Cooldown:        a.Config.Alerting.Cooldown,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	channels, closeChannels, err := a.newChannels()
	if err != nil {
		return err
	}
	defer closeChannels()
	if len(channels) == 0 {
		a.Logger.Warn().Msg("no notification channels enabled; crossings will only be logged")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	svc := a.newService(store, channels, sched)

	a.Logger.Info().
		Str("provider", a.Config.Quotes.Provider).
		Dur("interval", a.Config.Scheduler.Interval).
		Dur("cooldown", a.Config.Alerting.Cooldown).
		Int("channels", len(channels)).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Once runs a single monitoring cycle and prints its outcome.
func (a *App) Once(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	channels, closeChannels, err := a.newChannels()
	if err != nil {
		return err
	}
	defer closeChannels()

	report, err := a.newService(store, channels, nil).RunOnce(ctx)
	if err != nil {
		return err
	}
	if report.Skipped {
		fmt.Fprintln(a.Out, "cycle skipped: another instance holds the lock")
		return nil
	}

	fmt.Fprintf(a.Out, "alerts=%d symbols=%d prices=%d crossings=%d delivered=%d\n",
		report.Alerts, len(report.Symbols), len(report.Samples), len(report.Crossings), report.Dispatch.Delivered())
	for _, line := range report.Dispatch.Summary() {
		fmt.Fprintln(a.Out, line)
	}
	return nil
}

// Migrate creates or updates the storage schema.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Logger.Info().Str("driver", a.Config.Database.Driver).Msg("schema ready")
	return nil
}

// ExportOptions hold parameters for exporting notification history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PruneOptions configure notification history retention.
type PruneOptions struct {
	OlderThan time.Duration
	Before    *time.Time
}
