package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/alert"
)

// SMSOptions configures a Twilio-compatible messaging gateway.
type SMSOptions struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	To         []string
	Timeout    time.Duration
}

// SMSChannel posts one short message per recipient.
type SMSChannel struct {
	opts   SMSOptions
	client *http.Client
	logger zerolog.Logger
}

// NewSMSChannel constructs the SMS gateway channel.
func NewSMSChannel(opts SMSOptions, logger zerolog.Logger) *SMSChannel {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.twilio.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &SMSChannel{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "alert_sms").Logger(),
	}
}

func (s *SMSChannel) Name() string { return "sms" }

// Deliver fails if any recipient was rejected.
func (s *SMSChannel) Deliver(ctx context.Context, c alert.Crossing) error {
	body := fmt.Sprintf("Price alert: %s at %v", Subject(c), c.ObservedPrice)

	var errs []error
	for _, to := range s.opts.To {
		if err := s.send(ctx, to, body); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SMSChannel) send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.opts.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.opts.BaseURL, url.PathEscape(s.opts.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.opts.AccountSID, s.opts.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Errorf("gateway status %d (code %d): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("gateway status %d", resp.StatusCode)
}

var _ Channel = (*SMSChannel)(nil)
