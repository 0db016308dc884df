package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/alert"
)

// TelegramChannel pushes messages through the Telegram Bot API.
type TelegramChannel struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramChannel constructs the Telegram channel.
func NewTelegramChannel(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (n *TelegramChannel) Name() string { return "telegram" }

// Deliver calls sendMessage with the rendered text.
func (n *TelegramChannel) Deliver(ctx context.Context, c alert.Crossing) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(c),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Debug().Str("symbol", c.Alert.Symbol).
		Str("direction", string(c.Direction)).
		Msg("telegram message sent")
	return nil
}

var _ Channel = (*TelegramChannel)(nil)
