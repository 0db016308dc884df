package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/clock"
)

// WebhookChannel POSTs the JSON event to every configured URL.
type WebhookChannel struct {
	urls    []string
	headers map[string]string
	client  *http.Client
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewWebhookChannel constructs the webhook channel.
func NewWebhookChannel(urls []string, headers map[string]string, timeout time.Duration, clk clock.Clock, logger zerolog.Logger) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &WebhookChannel{
		urls:    append([]string(nil), urls...),
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		clock:   clk,
		logger:  logger.With().Str("component", "alert_webhook").Logger(),
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

// Deliver succeeds only when every URL answered 2xx.
func (w *WebhookChannel) Deliver(ctx context.Context, c alert.Crossing) error {
	body, err := json.Marshal(NewEvent(c, w.clock.Now()))
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	var errs []error
	for _, target := range w.urls {
		if err := w.post(ctx, target, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebhookChannel) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s status %d", target, resp.StatusCode)
	}
	return nil
}

var _ Channel = (*WebhookChannel)(nil)
