// Package constants provides centralized domain-specific constants
// for the entire meteolog application.
//
// This file consolidates all magic strings and values so they are
// not scattered across multiple packages.
package constants

// =============================================================================
// Temperature Bounds - Physical plausibility range for readings
// =============================================================================

const (
	// TemperatureMin is the lowest accepted temperature in degrees Celsius.
	TemperatureMin = -50.0

	// TemperatureMax is the highest accepted temperature in degrees Celsius.
	TemperatureMax = 60.0
)

// =============================================================================
// Aggregation Sources - Where an analytics answer was computed from
// =============================================================================

const (
	// SourceCache indicates the answer was computed from cached readings.
	SourceCache = "cache"

	// SourceStorage indicates the answer was computed by the database.
	SourceStorage = "storage"
)

// ValidSources contains all valid aggregation source values
var ValidSources = []string{SourceCache, SourceStorage}

// =============================================================================
// Ingest Origins - Which path a reading arrived through
// =============================================================================

const (
	// OriginHTTP indicates a reading submitted through the HTTP API
	OriginHTTP = "http"

	// OriginMQTT indicates a reading delivered by the MQTT bridge
	OriginMQTT = "mqtt"

	// OriginSimulator indicates a synthetic reading from the generator
	OriginSimulator = "simulator"
)

// =============================================================================
// Storage Drivers
// =============================================================================

const (
	// DriverDuckDB is the embedded analytical engine (default).
	DriverDuckDB = "duckdb"

	// DriverSQLite is the lightweight alternative engine.
	DriverSQLite = "sqlite3"
)

// ValidDrivers contains all supported storage driver names
var ValidDrivers = []string{DriverDuckDB, DriverSQLite}

// IsValidDriver checks if a driver name is supported
func IsValidDriver(driver string) bool {
	for _, d := range ValidDrivers {
		if d == driver {
			return true
		}
	}
	return false
}

// =============================================================================
// Query Limits
// =============================================================================

const (
	// RecentLimitDefault is the number of readings returned when no limit is given
	RecentLimitDefault = 10

	// RecentLimitMax is the largest accepted recent-readings limit
	RecentLimitMax = 100
)

// =============================================================================
// Simulator Bounds
// =============================================================================

const (
	// SimulateMaxSensors caps the number of synthetic sensors per request
	SimulateMaxSensors = 10

	// SimulateMaxPerSensor caps the readings generated per sensor per request
	SimulateMaxPerSensor = 120

	// SimulateDefaultSensors is used when a request does not name a sensor count
	SimulateDefaultSensors = 3

	// SimulateDefaultPerSensor is used when a request does not name a per-sensor count
	SimulateDefaultPerSensor = 60
)
