// Package config provides configuration for the meteolog application:
// documented defaults, the YAML config tree, loading, and validation.
//
// Users can override the defaults via config.yaml or CLI flags.
package config

import "time"

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8000"

	// DefaultShutdownTimeout is how long in-flight requests get to finish
	// during shutdown before the listener is torn down.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultStorageDriver selects the embedded database engine.
	// Supported: duckdb, sqlite3.
	// Override via config: storage.driver
	DefaultStorageDriver = "duckdb"

	// DefaultStoragePath is the database file path. An empty path runs the
	// engine fully in memory, which is useful for tests and demos.
	// Override via config: storage.path
	DefaultStoragePath = "meteolog.db"
)

// =============================================================================
// Cache Defaults
// =============================================================================

const (
	// DefaultCacheCapacity is the number of readings the recency cache holds.
	// When full, the least recently recorded reading is evicted.
	// Override via config: cache.capacity
	DefaultCacheCapacity = 100
)

// =============================================================================
// Pool Defaults
// =============================================================================

const (
	// DefaultPoolMinConns is the number of connections opened eagerly at
	// startup and kept as the floor the pool replenishes toward.
	// Override via config: pool.min_conns
	DefaultPoolMinConns = 2

	// DefaultPoolMaxConns is the hard ceiling on open connections. Acquire
	// blocks once all are checked out.
	// Override via config: pool.max_conns
	DefaultPoolMaxConns = 5

	// DefaultPoolAcquireTimeout is how long an acquire waits for a free
	// connection before failing with pool exhaustion.
	// Override via config: pool.acquire_timeout
	DefaultPoolAcquireTimeout = 5 * time.Second
)

// =============================================================================
// Analytics Defaults
// =============================================================================

const (
	// DefaultAnalyticsWindow is the trailing window analytics queries cover
	// when the caller does not specify one.
	// Override via config: analytics.default_window
	DefaultAnalyticsWindow = time.Hour

	// DefaultCacheThreshold is the minimum number of cached readings inside
	// the window for the cache to answer an analytics query by itself.
	// Below it, the query goes to storage.
	// Override via config: analytics.cache_threshold
	DefaultCacheThreshold = 30

	// DefaultSketchAccuracy is the DDSketch relative accuracy used for
	// summary percentiles (0.01 = 1% error).
	// Override via config: analytics.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// MQTT Defaults
// =============================================================================

const (
	// DefaultMQTTTopic is the topic the ingest bridge subscribes to.
	// Override via config: mqtt.topic
	DefaultMQTTTopic = "meteolog/readings"

	// DefaultMQTTQoS is the subscription quality of service level.
	// Override via config: mqtt.qos
	DefaultMQTTQoS = 1

	// DefaultMQTTClientID identifies the bridge to the broker.
	// Override via config: mqtt.client_id
	DefaultMQTTClientID = "meteolog-bridge"
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level emitted: debug, info, warn, error.
	// Override via config: logging.level
	DefaultLogLevel = "info"
)
