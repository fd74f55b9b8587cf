package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Listen == "" {
		t.Error("expected default listen address")
	}

	if cfg.Storage.Driver != "duckdb" {
		t.Errorf("expected default driver duckdb, got %s", cfg.Storage.Driver)
	}

	if cfg.Cache.Capacity <= 0 {
		t.Error("expected positive cache capacity")
	}

	if cfg.Pool.MinConns > cfg.Pool.MaxConns {
		t.Error("expected min_conns <= max_conns")
	}

	if cfg.Analytics.CacheThreshold != 30 {
		t.Errorf("expected cache_threshold 30, got %d", cfg.Analytics.CacheThreshold)
	}

	if cfg.MQTT.Enabled {
		t.Error("expected mqtt disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	// Valid config
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	// Invalid: empty listen address
	cfg = DefaultConfig()
	cfg.Server.Listen = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty listen address")
	}

	// Invalid: unknown driver
	cfg = DefaultConfig()
	cfg.Storage.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown driver")
	}

	// Invalid: zero cache capacity
	cfg = DefaultConfig()
	cfg.Cache.Capacity = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero cache capacity")
	}

	// Invalid: min_conns above max_conns
	cfg = DefaultConfig()
	cfg.Pool.MinConns = 10
	cfg.Pool.MaxConns = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when min_conns exceeds max_conns")
	}

	// Invalid: non-positive acquire timeout
	cfg = DefaultConfig()
	cfg.Pool.AcquireTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero acquire_timeout")
	}

	// Invalid: sketch accuracy out of range
	cfg = DefaultConfig()
	cfg.Analytics.SketchAccuracy = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sketch_accuracy above 1")
	}
}

func TestMQTTValidate(t *testing.T) {
	// Disabled bridge skips checks entirely.
	cfg := DefaultConfig()
	cfg.MQTT.Broker = ""
	if err := cfg.MQTT.Validate(); err != nil {
		t.Errorf("disabled mqtt should not be validated: %v", err)
	}

	// Enabled without a broker fails.
	cfg = DefaultConfig()
	cfg.MQTT.Enabled = true
	if err := cfg.MQTT.Validate(); err == nil {
		t.Error("expected error for enabled mqtt without broker")
	}

	// Enabled with broker and bad QoS fails.
	cfg = DefaultConfig()
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.QoS = 3
	if err := cfg.MQTT.Validate(); err == nil {
		t.Error("expected error for qos 3")
	}

	// Fully specified passes.
	cfg.MQTT.QoS = 1
	if err := cfg.MQTT.Validate(); err != nil {
		t.Errorf("valid mqtt config should pass: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
server:
  listen: 127.0.0.1:9090
  shutdown_timeout: 5s
storage:
  driver: sqlite3
  path: /tmp/test-meteolog.db
cache:
  capacity: 250
pool:
  min_conns: 1
  max_conns: 3
  acquire_timeout: 2s
analytics:
  default_window: 30m
  cache_threshold: 10
  sketch_accuracy: 0.02
logging:
  level: debug
  json: true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:9090" {
		t.Errorf("expected listen=127.0.0.1:9090, got %s", cfg.Server.Listen)
	}

	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("expected shutdown_timeout=5s, got %v", cfg.Server.ShutdownTimeout)
	}

	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("expected driver=sqlite3, got %s", cfg.Storage.Driver)
	}

	if cfg.Cache.Capacity != 250 {
		t.Errorf("expected capacity=250, got %d", cfg.Cache.Capacity)
	}

	if cfg.Pool.MaxConns != 3 {
		t.Errorf("expected max_conns=3, got %d", cfg.Pool.MaxConns)
	}

	if cfg.Analytics.DefaultWindow != 30*time.Minute {
		t.Errorf("expected default_window=30m, got %v", cfg.Analytics.DefaultWindow)
	}

	if cfg.Analytics.CacheThreshold != 10 {
		t.Errorf("expected cache_threshold=10, got %d", cfg.Analytics.CacheThreshold)
	}

	if !cfg.Logging.JSON {
		t.Error("expected json logging enabled")
	}

	// Keys absent from the file keep their defaults.
	if cfg.MQTT.Topic != DefaultMQTTTopic {
		t.Errorf("expected default mqtt topic, got %s", cfg.MQTT.Topic)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")

	configContent := `
pool:
  min_conns: 9
  max_conns: 2
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected validation error from Load")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		c := LoggingConfig{Level: tt.level}
		if got := c.SlogLevel(); got != tt.expected {
			t.Errorf("SlogLevel(%q): expected %v, got %v", tt.level, tt.expected, got)
		}
	}
}
