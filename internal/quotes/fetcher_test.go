package quotes

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/clock"
)

type fakeFeed struct {
	mu    sync.Mutex
	calls int
	errs  []error
	data  map[string]PriceSample
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) Query(ctx context.Context, symbols []string) (map[string]PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	out := make(map[string]PriceSample)
	for _, s := range symbols {
		if sample, ok := f.data[s]; ok {
			out[s] = sample
		}
	}
	return out, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testData() map[string]PriceSample {
	return map[string]PriceSample{
		"AAPL": {Symbol: "AAPL", Price: 200, DisplayName: "Apple Inc."},
		"MSFT": {Symbol: "MSFT", Price: 410.5, DisplayName: "Microsoft Corporation"},
	}
}

func TestFetchPricesCachesWithinTTL(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC))
	feed := &fakeFeed{data: testData()}
	f := NewFetcher(feed, FetcherOptions{CacheTTL: 30 * time.Second, Clock: clk}, noopLogger())

	first, err := f.FetchPrices(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	clk.Advance(29 * time.Second)
	second, err := f.FetchPrices(context.Background(), []string{"MSFT", "AAPL"})
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	if feed.callCount() != 1 {
		t.Fatalf("expected 1 upstream call within TTL, got %d", feed.callCount())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached result differs: %#v vs %#v", first, second)
	}

	clk.Advance(time.Second)
	if _, err := f.FetchPrices(context.Background(), []string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("fetch after expiry failed: %v", err)
	}
	if feed.callCount() != 2 {
		t.Fatalf("expected a new upstream call after TTL, got %d calls", feed.callCount())
	}
}

func TestFetchPricesSymbolSetChangeMissesCache(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC))
	feed := &fakeFeed{data: testData()}
	f := NewFetcher(feed, FetcherOptions{Clock: clk}, noopLogger())

	if _, err := f.FetchPrices(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.FetchPrices(context.Background(), []string{"AAPL", "MSFT"}); err != nil {
		t.Fatal(err)
	}
	if feed.callCount() != 2 {
		t.Fatalf("different symbol set must reach upstream, got %d calls", feed.callCount())
	}
}

func TestFetchPricesOmitsMissingSymbols(t *testing.T) {
	feed := &fakeFeed{data: testData()}
	f := NewFetcher(feed, FetcherOptions{}, noopLogger())

	samples, err := f.FetchPrices(context.Background(), []string{"AAPL", "DELISTED"})
	if err != nil {
		t.Fatalf("missing symbol must not be an error: %v", err)
	}
	if len(samples) != 1 || samples[0].Symbol != "AAPL" {
		t.Fatalf("expected only AAPL, got %#v", samples)
	}
}

func TestFetchPricesRetriesRateLimit(t *testing.T) {
	rateLimited := errors.Join(errors.New("429"), ErrRateLimited)
	feed := &fakeFeed{data: testData(), errs: []error{rateLimited, rateLimited}}
	rec := &sleepRecorder{}
	f := NewFetcher(feed, FetcherOptions{Sleep: rec.sleep}, noopLogger())

	samples, err := f.FetchPrices(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}
	if feed.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", feed.callCount())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(rec.delays, want) {
		t.Fatalf("unexpected backoff delays: %v", rec.delays)
	}
}

func TestFetchPricesExhaustsRetries(t *testing.T) {
	rateLimited := errors.Join(errors.New("429"), ErrRateLimited)
	feed := &fakeFeed{errs: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	rec := &sleepRecorder{}
	f := NewFetcher(feed, FetcherOptions{Sleep: rec.sleep}, noopLogger())

	_, err := f.FetchPrices(context.Background(), []string{"AAPL"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", upstream.Attempts)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("rate limit cause should be preserved")
	}
	if feed.callCount() != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", feed.callCount())
	}
}

func TestFetchPricesDoesNotRetryOtherErrors(t *testing.T) {
	feed := &fakeFeed{errs: []error{errors.New("connection refused")}}
	rec := &sleepRecorder{}
	f := NewFetcher(feed, FetcherOptions{Sleep: rec.sleep}, noopLogger())

	_, err := f.FetchPrices(context.Background(), []string{"AAPL"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if feed.callCount() != 1 || len(rec.delays) != 0 {
		t.Fatalf("non rate-limit errors must not be retried (calls=%d sleeps=%d)", feed.callCount(), len(rec.delays))
	}
}

func TestFetchPricesFailureKeepsPreviousCache(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC))
	feed := &fakeFeed{data: testData(), errs: []error{nil, errors.New("boom")}}
	f := NewFetcher(feed, FetcherOptions{Clock: clk}, noopLogger())

	if _, err := f.FetchPrices(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.FetchPrices(context.Background(), []string{"MSFT"}); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := f.FetchPrices(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("AAPL should still be cached: %v", err)
	}
	if feed.callCount() != 2 {
		t.Fatalf("expected cache hit for AAPL, got %d calls", feed.callCount())
	}
}

func TestFetchSinglePrice(t *testing.T) {
	feed := &fakeFeed{data: testData()}
	f := NewFetcher(feed, FetcherOptions{}, noopLogger())

	sample, ok, err := f.FetchSinglePrice(context.Background(), " aapl ")
	if err != nil || !ok {
		t.Fatalf("expected AAPL sample, ok=%v err=%v", ok, err)
	}
	if sample.DisplayName != "Apple Inc." {
		t.Fatalf("unexpected display name %q", sample.DisplayName)
	}

	_, ok, err = f.FetchSinglePrice(context.Background(), "NOPE")
	if err != nil || ok {
		t.Fatalf("unknown symbol should be absent, ok=%v err=%v", ok, err)
	}
}

func TestCacheKeyIgnoresOrder(t *testing.T) {
	if CacheKey([]string{"MSFT", "AAPL"}) != "AAPL,MSFT" {
		t.Fatalf("unexpected key %q", CacheKey([]string{"MSFT", "AAPL"}))
	}
}
