package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestYahooFeedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != yahooQuotePath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL,GONE,VOD.L" {
			t.Fatalf("unexpected symbols %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"AAPL","regularMarketPrice":200.25,"shortName":"Apple Inc.","longName":"Apple Inc."},
			{"symbol":"GONE","shortName":"No data"},
			{"symbol":"VOD.L","regularMarketPrice":71.3,"longName":"Vodafone Group Plc"}
		],"error":null}}`))
	}))
	defer srv.Close()

	feed := NewYahooFeed(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	out, err := feed.Query(context.Background(), []string{"AAPL", "GONE", "VOD.L"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %#v", out)
	}
	if out["AAPL"].Price != 200.25 || out["AAPL"].DisplayName != "Apple Inc." {
		t.Fatalf("unexpected AAPL sample %#v", out["AAPL"])
	}
	if out["VOD.L"].DisplayName != "Vodafone Group Plc" {
		t.Fatalf("long name fallback not applied: %#v", out["VOD.L"])
	}
}

func TestYahooFeedRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("Too Many Requests"))
	}))
	defer srv.Close()

	feed := NewYahooFeed(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := feed.Query(context.Background(), []string{"AAPL"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("429 should map to ErrRateLimited, got %v", err)
	}
}

func TestYahooFeedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"finance":{"error":{"code":"Bad Gateway","description":"upstream down"}}}`))
	}))
	defer srv.Close()

	feed := NewYahooFeed(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := feed.Query(context.Background(), []string{"AAPL"})
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("502 should be a plain error, got %v", err)
	}
}
