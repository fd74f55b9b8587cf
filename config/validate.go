package config

import (
	"errors"
	"fmt"

	"github.com/xtxerr/meteolog/internal/constants"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if err := c.Pool.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pool: %w", err))
	}

	if err := c.Analytics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analytics: %w", err))
	}

	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	if !constants.IsValidDriver(c.Driver) {
		return fmt.Errorf("driver must be one of: duckdb, sqlite3 (got %q)", c.Driver)
	}
	return nil
}

// Validate checks the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	return nil
}

// Validate checks the pool configuration.
func (c *PoolConfig) Validate() error {
	var errs []error

	if c.MinConns < 0 {
		errs = append(errs, errors.New("min_conns must be non-negative"))
	}

	if c.MaxConns < 1 {
		errs = append(errs, errors.New("max_conns must be at least 1"))
	}

	if c.MinConns > c.MaxConns {
		errs = append(errs, fmt.Errorf("min_conns (%d) must not exceed max_conns (%d)",
			c.MinConns, c.MaxConns))
	}

	if c.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("acquire_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the analytics configuration.
func (c *AnalyticsConfig) Validate() error {
	var errs []error

	if c.DefaultWindow <= 0 {
		errs = append(errs, errors.New("default_window must be positive"))
	}

	if c.CacheThreshold < 1 {
		errs = append(errs, errors.New("cache_threshold must be at least 1"))
	}

	if c.SketchAccuracy <= 0 || c.SketchAccuracy > 1 {
		errs = append(errs, errors.New("sketch_accuracy must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the MQTT configuration. Disabled bridges are not checked.
func (c *MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Broker == "" {
		errs = append(errs, errors.New("broker is required when enabled"))
	}

	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required when enabled"))
	}

	if c.QoS < 0 || c.QoS > 2 {
		errs = append(errs, errors.New("qos must be 0, 1, or 2"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
