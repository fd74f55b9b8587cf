package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Storage configures the embedded database.
	Storage StorageConfig `yaml:"storage"`

	// Cache configures the in-memory recency cache.
	Cache CacheConfig `yaml:"cache"`

	// Pool configures the database connection pool.
	Pool PoolConfig `yaml:"pool"`

	// Analytics configures window queries and the cache-first strategy.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// MQTT configures the optional ingest bridge.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// ShutdownTimeout bounds the graceful drain on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig configures the embedded database.
type StorageConfig struct {
	// Driver is the database engine: duckdb or sqlite3.
	Driver string `yaml:"driver"`

	// Path is the database file. Empty means in-memory.
	Path string `yaml:"path"`
}

// CacheConfig configures the in-memory recency cache.
type CacheConfig struct {
	// Capacity is the maximum number of cached readings.
	Capacity int `yaml:"capacity"`
}

// PoolConfig configures the database connection pool.
type PoolConfig struct {
	// MinConns is the floor of eagerly opened connections.
	MinConns int `yaml:"min_conns"`

	// MaxConns is the ceiling of open connections.
	MaxConns int `yaml:"max_conns"`

	// AcquireTimeout is the maximum wait for a free connection.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// AnalyticsConfig configures window queries.
type AnalyticsConfig struct {
	// DefaultWindow is the trailing window when none is given.
	DefaultWindow time.Duration `yaml:"default_window"`

	// CacheThreshold is the minimum cached-reading count for a
	// cache-sourced answer.
	CacheThreshold int `yaml:"cache_threshold"`

	// SketchAccuracy is the DDSketch relative accuracy for percentiles.
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// MQTTConfig configures the optional ingest bridge.
type MQTTConfig struct {
	// Enabled turns the bridge on.
	Enabled bool `yaml:"enabled"`

	// Broker is the broker URL (e.g., "tcp://localhost:1883").
	Broker string `yaml:"broker"`

	// Topic is the subscription topic.
	Topic string `yaml:"topic"`

	// ClientID identifies this client to the broker.
	ClientID string `yaml:"client_id"`

	// Username and Password are optional broker credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// QoS is the subscription quality of service (0-2).
	QoS int `yaml:"qos"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output from text to JSON.
	JSON bool `yaml:"json"`
}

// SlogLevel maps the configured level name to a slog.Level.
// Unknown names fall back to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration from a YAML file. Values not present in the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          DefaultListenAddress,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
			Path:   DefaultStoragePath,
		},
		Cache: CacheConfig{
			Capacity: DefaultCacheCapacity,
		},
		Pool: PoolConfig{
			MinConns:       DefaultPoolMinConns,
			MaxConns:       DefaultPoolMaxConns,
			AcquireTimeout: DefaultPoolAcquireTimeout,
		},
		Analytics: AnalyticsConfig{
			DefaultWindow:  DefaultAnalyticsWindow,
			CacheThreshold: DefaultCacheThreshold,
			SketchAccuracy: DefaultSketchAccuracy,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Topic:    DefaultMQTTTopic,
			ClientID: DefaultMQTTClientID,
			QoS:      DefaultMQTTQoS,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			JSON:  false,
		},
	}
}
