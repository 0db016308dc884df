package quotes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/clock"
)

const (
	defaultMaxRetries   = 2
	defaultRetryBackoff = 2 * time.Second
)

// FetcherOptions tune caching and retry behaviour.
type FetcherOptions struct {
	CacheTTL     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Clock        clock.Clock
	// Sleep waits between rate-limited attempts. Defaults to a ctx-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetcher resolves prices through a Feed, reusing recent results and
// backing off when the upstream throttles.
type Fetcher struct {
	feed   Feed
	cache  *QuoteCache
	opts   FetcherOptions
	logger zerolog.Logger

	mu sync.Mutex
}

// NewFetcher wires a feed behind a cache and retry policy.
func NewFetcher(feed Feed, opts FetcherOptions, logger zerolog.Logger) *Fetcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Fetcher{
		feed:   feed,
		cache:  NewQuoteCache(opts.CacheTTL, opts.Clock),
		opts:   opts,
		logger: logger.With().Str("component", "quote_fetcher").Str("feed", feed.Name()).Logger(),
	}
}

// FetchPrices returns samples for the requested symbols. Missing symbols are
// omitted; result order is not significant.
func (f *Fetcher) FetchPrices(ctx context.Context, symbols []string) ([]PriceSample, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	key := CacheKey(symbols)

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache.Get(key); ok {
		f.logger.Debug().Str("key", key).Int("samples", len(cached)).Msg("quote cache hit")
		return cached, nil
	}

	result, err := f.queryWithRetry(ctx, symbols)
	if err != nil {
		return nil, err
	}

	samples := make([]PriceSample, 0, len(result))
	for _, symbol := range symbols {
		sample, ok := result[strings.ToUpper(strings.TrimSpace(symbol))]
		if !ok {
			f.logger.Debug().Str("symbol", symbol).Msg("no market data for symbol")
			continue
		}
		samples = append(samples, sample)
	}

	f.cache.Put(key, samples)
	f.logger.Debug().Str("key", key).Int("samples", len(samples)).Msg("quotes fetched")
	return samples, nil
}

// FetchSinglePrice resolves one symbol; ok is false when the feed has no data for it.
func (f *Fetcher) FetchSinglePrice(ctx context.Context, symbol string) (PriceSample, bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	samples, err := f.FetchPrices(ctx, []string{symbol})
	if err != nil {
		return PriceSample{}, false, err
	}
	for _, sample := range samples {
		if sample.Symbol == symbol {
			return sample, true, nil
		}
	}
	return PriceSample{}, false, nil
}

func (f *Fetcher) queryWithRetry(ctx context.Context, symbols []string) (map[string]PriceSample, error) {
	for attempt := 0; ; attempt++ {
		result, err := f.feed.Query(ctx, symbols)
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, ErrRateLimited) || attempt >= f.opts.MaxRetries {
			return nil, &UpstreamError{Feed: f.feed.Name(), Attempts: attempt + 1, Err: err}
		}

		delay := time.Duration(attempt+1) * f.opts.RetryBackoff
		f.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("quote feed rate limited; backing off")

		if err := f.opts.Sleep(ctx, delay); err != nil {
			return nil, &UpstreamError{Feed: f.feed.Name(), Attempts: attempt + 1, Err: err}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
