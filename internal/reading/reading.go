// Package reading defines the temperature reading value type shared by
// every layer of the application.
package reading

import (
	"fmt"
	"time"

	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/validation"
)

// Reading represents a single temperature measurement from a sensor.
// This is the primary data unit flowing through the system.
type Reading struct {
	// Timestamp is when the measurement was taken. A zero value means
	// "now" and is filled in at ingest time.
	Timestamp time.Time `json:"timestamp"`

	// Temperature is the measured value in degrees Celsius.
	Temperature float64 `json:"temperature"`

	// SensorID identifies the reporting sensor (e.g., "rooftop-01").
	SensorID string `json:"sensor_id"`
}

// Validate checks the reading against the accepted temperature range and
// sensor id rules. All field problems are reported together; the error
// unwraps to the validation sentinels.
func (r Reading) Validate() error {
	errs := errors.NewValidationErrors()

	if err := validation.ValidateTemperature(r.Temperature); err != nil {
		errs.Add(fmt.Errorf("%v: %w", err, errors.ErrTemperatureOutOfRange))
	}

	if r.SensorID == "" {
		errs.Add(errors.ErrMissingSensorID)
	} else if err := validation.ValidateSensorID(r.SensorID, validation.DefaultSensorIDRules()); err != nil {
		errs.Add(fmt.Errorf("%v: %w", err, errors.ErrInvalidReading))
	}

	return errs.Err()
}

// Normalized returns a copy with the timestamp defaulted to now (UTC) when
// unset, and converted to UTC otherwise. Storage and cache both expect UTC.
func (r Reading) Normalized(now time.Time) Reading {
	if r.Timestamp.IsZero() {
		r.Timestamp = now.UTC()
	} else {
		r.Timestamp = r.Timestamp.UTC()
	}
	return r
}

// Age returns how old the reading is relative to now.
func (r Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// String returns a compact human-readable representation.
func (r Reading) String() string {
	return fmt.Sprintf("%s %.2f°C @ %s",
		r.SensorID, r.Temperature, r.Timestamp.Format(time.RFC3339))
}
