package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"price-threshold-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and sizes the alert store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Retention       time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// QuotesConfig covers the upstream price feed.
type QuotesConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
	BinanceAPIKey  string        `mapstructure:"binance_api_key"`
	BinanceSecret  string        `mapstructure:"binance_secret_key"`
}

// AlertingConfig defines cooldown and delivery channels.
type AlertingConfig struct {
	Cooldown    time.Duration  `mapstructure:"cooldown"`
	MaxParallel int            `mapstructure:"max_parallel"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Email       EmailConfig    `mapstructure:"email"`
	SMS         SMSConfig      `mapstructure:"sms"`
	Webhook     WebhookConfig  `mapstructure:"webhook"`
	NATS        NATSConfig     `mapstructure:"nats"`
	Redis       RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	TLS      string   `mapstructure:"tls"`
}

// SMSConfig describes a Twilio-compatible SMS gateway.
type SMSConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	APIBase    string   `mapstructure:"api_base"`
	AccountSID string   `mapstructure:"account_sid"`
	AuthToken  string   `mapstructure:"auth_token"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
}

// WebhookConfig lists JSON POST targets.
type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URLs    []string          `mapstructure:"urls"`
	Headers map[string]string `mapstructure:"headers"`
}

// NATSConfig describes the NATS publish channel.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// RedisConfig describes the Redis pub/sub channel.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads ./.env when present; existing variables win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "720h")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70726377))

	v.SetDefault("quotes.provider", "yahoo")
	v.SetDefault("quotes.cache_ttl", "30s")
	v.SetDefault("quotes.request_timeout", "10s")
	v.SetDefault("quotes.max_retries", 2)
	v.SetDefault("quotes.retry_backoff", "2s")
	v.SetDefault("quotes.user_agent", "pricewatch/1.0")

	v.SetDefault("alerting.cooldown", "60m")
	v.SetDefault("alerting.max_parallel", 8)
	v.SetDefault("alerting.timeout", "15s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.email.tls", "mandatory")
	v.SetDefault("alerting.email.to", []string{})
	v.SetDefault("alerting.sms.enabled", false)
	v.SetDefault("alerting.sms.api_base", "https://api.twilio.com")
	v.SetDefault("alerting.sms.to", []string{})
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.urls", []string{})
	v.SetDefault("alerting.nats.enabled", false)
	v.SetDefault("alerting.nats.subject", "pricewatch.alerts")
	v.SetDefault("alerting.redis.enabled", false)
	v.SetDefault("alerting.redis.channel", "pricewatch:alerts")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler.startup_delay cannot be negative")
	}
	switch strings.ToLower(c.Quotes.Provider) {
	case "yahoo", "binance":
	default:
		return fmt.Errorf("quotes.provider must be yahoo or binance, got %q", c.Quotes.Provider)
	}
	if c.Quotes.CacheTTL <= 0 {
		return fmt.Errorf("quotes.cache_ttl must be greater than zero")
	}
	if c.Quotes.MaxRetries < 0 {
		return fmt.Errorf("quotes.max_retries cannot be negative")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return c.Alerting.validateChannels()
}

func (a AlertingConfig) validateChannels() error {
	if a.Telegram.Enabled {
		if a.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if a.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if a.Email.Enabled {
		if a.Email.Host == "" || a.Email.From == "" {
			return fmt.Errorf("alerting.email.host and alerting.email.from are required")
		}
		if len(a.Email.To) == 0 {
			return fmt.Errorf("alerting.email.to needs at least one recipient")
		}
	}
	if a.SMS.Enabled {
		if a.SMS.AccountSID == "" || a.SMS.AuthToken == "" {
			return fmt.Errorf("alerting.sms.account_sid and alerting.sms.auth_token are required")
		}
		if a.SMS.From == "" || len(a.SMS.To) == 0 {
			return fmt.Errorf("alerting.sms.from and alerting.sms.to are required")
		}
	}
	if a.Webhook.Enabled && len(a.Webhook.URLs) == 0 {
		return fmt.Errorf("alerting.webhook.urls needs at least one url")
	}
	if a.NATS.Enabled && a.NATS.URL == "" {
		return fmt.Errorf("alerting.nats.url is required")
	}
	if a.Redis.Enabled && a.Redis.Addr == "" {
		return fmt.Errorf("alerting.redis.addr is required")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
