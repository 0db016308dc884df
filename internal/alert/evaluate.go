package alert

import (
	"time"

	"price-threshold-alerts/internal/quotes"
)

// Evaluate returns every crossing produced by samples against alerts.
// It performs no I/O and does not modify its inputs. Each direction of an
// alert is gated only by its own last-notified timestamp.
func Evaluate(alerts []Alert, samples []quotes.PriceSample, cooldown time.Duration, now time.Time) []Crossing {
	bySymbol := make(map[string]quotes.PriceSample, len(samples))
	for _, s := range samples {
		bySymbol[s.Symbol] = s
	}

	var crossings []Crossing
	for _, a := range alerts {
		if !a.Enabled {
			continue
		}
		sample, ok := bySymbol[a.Symbol]
		if !ok {
			continue
		}
		price := sample.Price

		if a.Above != nil && price >= *a.Above && cooledDown(a.LastNotifiedAboveAt, cooldown, now) {
			crossings = append(crossings, Crossing{Alert: a, ObservedPrice: price, Direction: Above, Threshold: *a.Above})
		}
		if a.Below != nil && price <= *a.Below && cooledDown(a.LastNotifiedBelowAt, cooldown, now) {
			crossings = append(crossings, Crossing{Alert: a, ObservedPrice: price, Direction: Below, Threshold: *a.Below})
		}
	}
	return crossings
}

func cooledDown(last *time.Time, cooldown time.Duration, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= cooldown
}
