package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Binance error codes that matter for quote lookups.
const (
	binanceCodeTooManyRequests = -1003
	binanceCodeTooManyOrders   = -1015
	binanceCodeInvalidSymbol   = -1121
)

// BinanceOptions parameterise the Binance spot price feed.
type BinanceOptions struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// BinanceFeed queries symbols one at a time so a single delisted pair
// does not fail the whole batch.
type BinanceFeed struct {
	client *binance.Client
	logger zerolog.Logger
}

// NewBinanceFeed builds a feed around a go-binance client.
func NewBinanceFeed(opts BinanceOptions, logger zerolog.Logger) *BinanceFeed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cli := binance.NewClient(opts.APIKey, opts.SecretKey)
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		cli.BaseURL = base
	}
	cli.HTTPClient = &http.Client{Timeout: timeout}

	return &BinanceFeed{
		client: cli,
		logger: logger.With().Str("component", "binance_feed").Logger(),
	}
}

// Name identifies the feed in logs and errors.
func (b *BinanceFeed) Name() string { return "binance" }

// Query resolves each symbol sequentially.
func (b *BinanceFeed) Query(ctx context.Context, symbols []string) (map[string]PriceSample, error) {
	out := make(map[string]PriceSample, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))

		prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			var apiErr *common.APIError
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case binanceCodeTooManyRequests, binanceCodeTooManyOrders:
					return nil, fmt.Errorf("binance %s: %s: %w", symbol, apiErr.Message, ErrRateLimited)
				case binanceCodeInvalidSymbol:
					b.logger.Debug().Str("symbol", symbol).Msg("symbol unknown to binance")
					continue
				}
			}
			return nil, fmt.Errorf("binance price %s: %w", symbol, err)
		}

		for _, p := range prices {
			if !strings.EqualFold(p.Symbol, symbol) {
				continue
			}
			price, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, fmt.Errorf("parse binance price %q: %w", p.Price, err)
			}
			out[symbol] = PriceSample{Symbol: symbol, Price: price.InexactFloat64(), DisplayName: symbol}
		}
	}
	return out, nil
}

var _ Feed = (*BinanceFeed)(nil)
