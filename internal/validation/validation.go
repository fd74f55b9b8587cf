// Package validation provides centralized input validation for meteolog.
//
package validation

import (
	"fmt"
	"time"
	"unicode"

	"github.com/xtxerr/meteolog/internal/constants"
)

// =============================================================================
// Sensor ID Validation
// =============================================================================

// SensorIDRules defines the validation rules for sensor identifiers.
type SensorIDRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// DefaultSensorIDRules returns the default rules for sensor identifiers.
func DefaultSensorIDRules() SensorIDRules {
	return SensorIDRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateSensorID validates a sensor identifier according to the given rules.
func ValidateSensorID(id string, rules SensorIDRules) error {
	if len(id) < rules.MinLength {
		return fmt.Errorf("sensor id too short: minimum %d characters required", rules.MinLength)
	}
	if len(id) > rules.MaxLength {
		return fmt.Errorf("sensor id too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i, r := range id {
		if r < 32 || r == 127 {
			return fmt.Errorf("sensor id cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("sensor id cannot contain path separators at position %d", i)
		}
		if !isAllowedIDChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedIDChar(r rune, rules SensorIDRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// =============================================================================
// Temperature Validation
// =============================================================================

// ValidateTemperature checks that a temperature is physically plausible.
func ValidateTemperature(celsius float64) error {
	if celsius != celsius {
		return fmt.Errorf("temperature is NaN")
	}
	if celsius < constants.TemperatureMin || celsius > constants.TemperatureMax {
		return fmt.Errorf("temperature %.2f outside accepted range [%.0f, %.0f]",
			celsius, constants.TemperatureMin, constants.TemperatureMax)
	}
	return nil
}

// =============================================================================
// Query Parameter Validation
// =============================================================================

// ValidateLimit checks a recent-readings limit against the accepted range.
func ValidateLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	if limit > constants.RecentLimitMax {
		return fmt.Errorf("limit must be at most %d, got %d", constants.RecentLimitMax, limit)
	}
	return nil
}

// ValidateWindow checks that a time window is well-formed.
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("window bounds must both be set")
	}
	if end.Before(start) {
		return fmt.Errorf("window end %s precedes start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}
