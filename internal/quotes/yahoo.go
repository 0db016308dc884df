package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const yahooQuotePath = "/v7/finance/quote"

// YahooOptions parameterise the Yahoo-style quote feed.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// YahooFeed fetches a whole symbol batch with a single quote request.
type YahooFeed struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahooFeed constructs the batch HTTP feed.
func NewYahooFeed(opts YahooOptions, logger zerolog.Logger) *YahooFeed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &YahooFeed{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies the feed in logs and errors.
func (y *YahooFeed) Name() string { return "yahoo" }

// Query fetches all symbols in one call.
func (y *YahooFeed) Query(ctx context.Context, symbols []string) (map[string]PriceSample, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	endpoint := y.baseURL + yahooQuotePath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pricewatch/1.0")
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send quote request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("yahoo quote (%d): %w", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseYahooError(resp.StatusCode, payload)
	}

	var decoded yahooQuoteResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	if apiErr := decoded.QuoteResponse.Error; apiErr != nil && apiErr.Description != "" {
		return nil, fmt.Errorf("yahoo quote error: %s", apiErr.Description)
	}

	out := make(map[string]PriceSample, len(decoded.QuoteResponse.Result))
	for _, item := range decoded.QuoteResponse.Result {
		if item.RegularMarketPrice == nil {
			continue
		}
		symbol := strings.ToUpper(item.Symbol)
		out[symbol] = PriceSample{
			Symbol:      symbol,
			Price:       *item.RegularMarketPrice,
			DisplayName: displayName(item.ShortName, item.LongName, symbol),
		}
	}

	y.logger.Debug().Int("requested", len(symbols)).Int("returned", len(out)).Msg("quote batch received")
	return out, nil
}

func displayName(candidates ...string) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string   `json:"symbol"`
			RegularMarketPrice *float64 `json:"regularMarketPrice"`
			ShortName          string   `json:"shortName"`
			LongName           string   `json:"longName"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteResponse"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func parseYahooError(status int, payload []byte) error {
	var wrapped struct {
		Finance struct {
			Error *yahooError `json:"error"`
		} `json:"finance"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Finance.Error != nil {
		if wrapped.Finance.Error.Description != "" {
			return fmt.Errorf("yahoo api error (%d): %s", status, wrapped.Finance.Error.Description)
		}
		if wrapped.Finance.Error.Code != "" {
			return fmt.Errorf("yahoo api error (%d): %s", status, wrapped.Finance.Error.Code)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("yahoo api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("yahoo api error (%d)", status)
}

var _ Feed = (*YahooFeed)(nil)
