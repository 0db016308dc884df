package quotes

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited marks an upstream refusal caused by request throttling.
var ErrRateLimited = errors.New("upstream rate limited")

// PriceSample is one observed price for a symbol.
type PriceSample struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	DisplayName string  `json:"display_name"`
}

// Feed queries an upstream quote source. Symbols without market data are
// simply missing from the returned map.
type Feed interface {
	Name() string
	Query(ctx context.Context, symbols []string) (map[string]PriceSample, error)
}

// UpstreamError reports a feed failure that survived the retry policy.
type UpstreamError struct {
	Feed     string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("quote feed %s failed after %d attempt(s): %v", e.Feed, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
