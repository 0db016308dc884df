package quotes

import (
	"slices"
	"strings"
	"sync"
	"time"

	"price-threshold-alerts/internal/clock"
)

// DefaultCacheTTL bounds how long a batch result is reused.
const DefaultCacheTTL = 30 * time.Second

// CacheKey canonicalises a symbol set so request order does not matter.
func CacheKey(symbols []string) string {
	sorted := slices.Clone(symbols)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

// QuoteCache holds the single most recent batch result.
type QuoteCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu        sync.Mutex
	key       string
	samples   []PriceSample
	fetchedAt time.Time
	filled    bool
}

// NewQuoteCache builds an empty cache.
func NewQuoteCache(ttl time.Duration, clk clock.Clock) *QuoteCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &QuoteCache{ttl: ttl, clock: clk}
}

// Get returns a copy of the cached batch when key matches and the entry is fresh.
func (c *QuoteCache) Get(key string) ([]PriceSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.filled || c.key != key {
		return nil, false
	}
	if c.clock.Now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return slices.Clone(c.samples), true
}

// Put replaces the cached entry.
func (c *QuoteCache) Put(key string, samples []PriceSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.key = key
	c.samples = slices.Clone(samples)
	c.fetchedAt = c.clock.Now()
	c.filled = true
}

// Age reports how old the cached entry is; ok is false when empty.
func (c *QuoteCache) Age() (age time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.filled {
		return 0, false
	}
	return c.clock.Now().Sub(c.fetchedAt), true
}
