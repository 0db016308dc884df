package alert

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Direction is the side of a threshold that was crossed.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// ParseDirection accepts "above" or "below" in any case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Above:
		return Above, nil
	case Below:
		return Below, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Alert is one monitoring rule. Above and Below are independent; each has
// its own cooldown timestamp.
type Alert struct {
	ID                  string
	Symbol              string
	DisplayName         string
	Above               *float64
	Below               *float64
	Enabled             bool
	LastNotifiedAboveAt *time.Time
	LastNotifiedBelowAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Threshold returns the configured threshold for d.
func (a Alert) Threshold(d Direction) (float64, bool) {
	var p *float64
	switch d {
	case Above:
		p = a.Above
	case Below:
		p = a.Below
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// LastNotified returns the cooldown anchor for d.
func (a Alert) LastNotified(d Direction) *time.Time {
	if d == Above {
		return a.LastNotifiedAboveAt
	}
	return a.LastNotifiedBelowAt
}

// Label is a human readable instrument name.
func (a Alert) Label() string {
	if a.DisplayName != "" && a.DisplayName != a.Symbol {
		return fmt.Sprintf("%s (%s)", a.DisplayName, a.Symbol)
	}
	return a.Symbol
}

// NormalizeSymbol trims and upper-cases an instrument identifier.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ErrNoThreshold is returned when neither threshold is set.
var ErrNoThreshold = errors.New("at least one of above/below threshold must be set")

// ValidateThresholds checks a threshold pair as entered by a user.
func ValidateThresholds(above, below *float64) error {
	if above == nil && below == nil {
		return ErrNoThreshold
	}
	for name, v := range map[string]*float64{"above": above, "below": below} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
			return fmt.Errorf("%s threshold must be a positive number, got %v", name, *v)
		}
	}
	return nil
}

// Validate checks an alert before it is stored.
func (a Alert) Validate() error {
	if NormalizeSymbol(a.Symbol) == "" {
		return errors.New("symbol is required")
	}
	return ValidateThresholds(a.Above, a.Below)
}

// Crossing is one directional threshold violation found in a cycle.
type Crossing struct {
	Alert         Alert
	ObservedPrice float64
	Direction     Direction
	Threshold     float64
}
