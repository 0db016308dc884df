package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: pricewatch\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Quotes.CacheTTL != 30*time.Second {
		t.Fatalf("expected 30s cache ttl, got %s", cfg.Quotes.CacheTTL)
	}
	if cfg.Quotes.MaxRetries != 2 || cfg.Quotes.RetryBackoff != 2*time.Second {
		t.Fatalf("unexpected retry defaults: %d / %s", cfg.Quotes.MaxRetries, cfg.Quotes.RetryBackoff)
	}
	if cfg.Alerting.Cooldown != 60*time.Minute {
		t.Fatalf("expected 60m cooldown, got %s", cfg.Alerting.Cooldown)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Database.Driver)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: /tmp/alerts.db
quotes:
  provider: binance
alerting:
  cooldown: 15m
  email:
    enabled: true
    host: smtp.example.com
    from: alerts@example.com
    to: ops@example.com
`)
	t.Setenv("PRICEWATCH_SCHEDULER_INTERVAL", "45s")
	t.Setenv("PRICEWATCH_ALERTING_WEBHOOK_ENABLED", "true")
	t.Setenv("PRICEWATCH_ALERTING_WEBHOOK_URLS", "https://a.example/hook,https://b.example/hook")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Scheduler.Interval != 45*time.Second {
		t.Fatalf("expected env override of interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Quotes.Provider != "binance" {
		t.Fatalf("expected binance provider, got %q", cfg.Quotes.Provider)
	}
	if cfg.Alerting.Cooldown != 15*time.Minute {
		t.Fatalf("expected 15m cooldown, got %s", cfg.Alerting.Cooldown)
	}
	if got := cfg.Alerting.Email.To; len(got) != 1 || got[0] != "ops@example.com" {
		t.Fatalf("unexpected email recipients: %v", got)
	}
	if !cfg.Alerting.Webhook.Enabled || len(cfg.Alerting.Webhook.URLs) != 2 {
		t.Fatalf("expected two webhook urls from env, got %+v", cfg.Alerting.Webhook)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"interval":  {func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval"},
		"cache ttl": {func(c *Config) { c.Quotes.CacheTTL = 0 }, "quotes.cache_ttl"},
		"cooldown":  {func(c *Config) { c.Alerting.Cooldown = -time.Second }, "alerting.cooldown"},
		"provider":  {func(c *Config) { c.Quotes.Provider = "bloomberg" }, "quotes.provider"},
		"driver":    {func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		"telegram": {func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.BotToken = "token"
		}, "chat_id"},
		"sms":   {func(c *Config) { c.Alerting.SMS.Enabled = true }, "alerting.sms"},
		"nats":  {func(c *Config) { c.Alerting.NATS.Enabled = true }, "alerting.nats.url"},
		"redis": {func(c *Config) { c.Alerting.Redis.Enabled = true }, "alerting.redis.addr"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ResolveMaxPoints(0); got != 100 {
		t.Fatalf("expected config default, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(5); got != 5 {
		t.Fatalf("expected override, got %d", got)
	}
}

func validConfig() Config {
	return Config{
		Database:  DatabaseConfig{Driver: "postgres"},
		Scheduler: SchedulerConfig{Interval: time.Minute},
		Quotes:    QuotesConfig{Provider: "yahoo", CacheTTL: 30 * time.Second, MaxRetries: 2},
		Alerting:  AlertingConfig{Cooldown: time.Hour},
		Export:    ExportConfig{MaxDataPoints: 100},
	}
}
