// meteologd is the weather station data platform daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/metrics"
	"github.com/xtxerr/meteolog/internal/mqtt"
	"github.com/xtxerr/meteolog/internal/server"
	"github.com/xtxerr/meteolog/internal/service"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "meteolog.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	driver := flag.String("driver", "", "storage driver: duckdb or sqlite3 (overrides config)")
	dbPath := flag.String("db", "", "database path (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "JSON log output")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	logging.Init(cfg.Logging.SlogLevel(), cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("meteologd starting", "version", Version, "config", *cfgPath)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// =========================================================================
	// Service: cache, pool, storage, aggregation
	// =========================================================================

	svc, err := service.New(cfg)
	if err != nil {
		log.Error("create service", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// =========================================================================
	// MQTT bridge (optional)
	// =========================================================================

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqtt.New(cfg.MQTT, svc, m)
		if err := bridge.Start(); err != nil {
			log.Error("start mqtt bridge", "error", err)
			svc.Close()
			os.Exit(1)
		}
		log.Info("mqtt bridge running", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	}

	// =========================================================================
	// HTTP server and graceful shutdown
	// =========================================================================

	srv := server.New(cfg.Server, svc, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx)

	// Stop accepting before draining: bridge first, then the service.
	if bridge != nil {
		bridge.Close()
	}
	if cerr := svc.Close(); cerr != nil {
		log.Warn("close service", "error", cerr)
	}
	if err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("meteologd stopped")
}
