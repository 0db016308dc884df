package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-threshold-alerts/internal/quotes"
)

var now = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func aapl(price float64) []quotes.PriceSample {
	return []quotes.PriceSample{{Symbol: "AAPL", Price: price, DisplayName: "Apple Inc."}}
}

func TestEvaluateAboveFires(t *testing.T) {
	alerts := []Alert{{ID: "a1", Symbol: "AAPL", Above: ptr(190), Enabled: true}}

	got := Evaluate(alerts, aapl(200), 60*time.Minute, now)

	require.Len(t, got, 1)
	assert.Equal(t, Above, got[0].Direction)
	assert.Equal(t, 190.0, got[0].Threshold)
	assert.Equal(t, 200.0, got[0].ObservedPrice)
	assert.Equal(t, "a1", got[0].Alert.ID)
}

func TestEvaluateCooldown(t *testing.T) {
	tests := []struct {
		name  string
		last  *time.Time
		fires bool
	}{
		{name: "never notified", last: nil, fires: true},
		{name: "30 minutes ago", last: ago(30 * time.Minute), fires: false},
		{name: "just under cooldown", last: ago(60*time.Minute - time.Second), fires: false},
		{name: "exactly cooldown", last: ago(60 * time.Minute), fires: true},
		{name: "61 minutes ago", last: ago(61 * time.Minute), fires: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := []Alert{{ID: "a1", Symbol: "AAPL", Above: ptr(190), Enabled: true, LastNotifiedAboveAt: tt.last}}
			got := Evaluate(alerts, aapl(200), 60*time.Minute, now)
			if tt.fires {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestEvaluateBelowInclusive(t *testing.T) {
	alerts := []Alert{{ID: "b1", Symbol: "AAPL", Below: ptr(150), Enabled: true}}

	got := Evaluate(alerts, aapl(150), time.Hour, now)
	require.Len(t, got, 1)
	assert.Equal(t, Below, got[0].Direction)

	assert.Empty(t, Evaluate(alerts, aapl(150.01), time.Hour, now))
}

func TestEvaluateBothDirectionsSamePrice(t *testing.T) {
	alerts := []Alert{{ID: "c1", Symbol: "AAPL", Above: ptr(180), Below: ptr(180), Enabled: true}}

	got := Evaluate(alerts, aapl(180), time.Hour, now)

	require.Len(t, got, 2)
	assert.Equal(t, Above, got[0].Direction)
	assert.Equal(t, Below, got[1].Direction)
}

func TestEvaluateDirectionsHaveIndependentCooldowns(t *testing.T) {
	alerts := []Alert{{
		ID: "d1", Symbol: "AAPL", Above: ptr(180), Below: ptr(180), Enabled: true,
		LastNotifiedAboveAt: ago(5 * time.Minute),
	}}
	got := Evaluate(alerts, aapl(180), time.Hour, now)
	require.Len(t, got, 1)
	assert.Equal(t, Below, got[0].Direction)

	alerts[0].LastNotifiedAboveAt = nil
	alerts[0].LastNotifiedBelowAt = ago(5 * time.Minute)
	got = Evaluate(alerts, aapl(180), time.Hour, now)
	require.Len(t, got, 1)
	assert.Equal(t, Above, got[0].Direction)
}

func TestEvaluateSkipsMissingSymbolsAndDisabled(t *testing.T) {
	alerts := []Alert{
		{ID: "x", Symbol: "MSFT", Above: ptr(1), Enabled: true},
		{ID: "y", Symbol: "AAPL", Above: ptr(1), Enabled: false},
	}
	assert.Empty(t, Evaluate(alerts, aapl(200), time.Hour, now))
}

func TestEvaluateLastSampleWins(t *testing.T) {
	alerts := []Alert{{ID: "z", Symbol: "AAPL", Above: ptr(190), Enabled: true}}
	samples := []quotes.PriceSample{{Symbol: "AAPL", Price: 195}, {Symbol: "AAPL", Price: 185}}
	assert.Empty(t, Evaluate(alerts, samples, time.Hour, now))
}

func TestEvaluateDoesNotMutateInputs(t *testing.T) {
	alerts := []Alert{{ID: "m", Symbol: "AAPL", Above: ptr(190), Enabled: true}}
	before := alerts[0]
	_ = Evaluate(alerts, aapl(200), time.Hour, now)
	assert.Equal(t, before, alerts[0])
	assert.Nil(t, alerts[0].LastNotifiedAboveAt)
}

func TestValidateThresholds(t *testing.T) {
	assert.ErrorIs(t, ValidateThresholds(nil, nil), ErrNoThreshold)
	assert.Error(t, ValidateThresholds(ptr(-1), nil))
	assert.NoError(t, ValidateThresholds(nil, ptr(10)))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" Above ")
	require.NoError(t, err)
	assert.Equal(t, Above, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
