// Package store persists temperature readings in an embedded SQL database
// and exposes pooled access to it.
//
// Two drivers are supported: DuckDB (the default, analytical) and SQLite.
// The schema and every query are written against the dialect subset both
// engines share. Timestamps are stored as UTC Unix milliseconds, which keeps
// range comparisons exact and identical across drivers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/pool"
)

// schema is executed statement by statement at startup. Both engines accept
// this dialect; BIGINT millisecond timestamps avoid their diverging native
// timestamp formats.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		timestamp   BIGINT NOT NULL,
		temperature DOUBLE NOT NULL,
		sensor_id   VARCHAR NOT NULL,
		created_at  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_sensor_time ON readings (sensor_id, timestamp)`,
}

// Store owns the database handle and hands out dedicated connections.
type Store struct {
	db     *sql.DB
	driver string
	path   string
	log    *slog.Logger

	// Statistics
	connsOpened atomic.Int64
	connsClosed atomic.Int64
}

// Open opens (or creates) the database for the configured driver and
// initializes the schema. An empty path selects an in-memory database.
func Open(cfg config.StorageConfig) (*Store, error) {
	if !constants.IsValidDriver(cfg.Driver) {
		return nil, errors.NewInvalidValue("driver", cfg.Driver, "unknown storage driver")
	}

	db, err := sql.Open(cfg.Driver, dsn(cfg.Driver, cfg.Path))
	if err != nil {
		return nil, errors.NewStorage("open database", err)
	}

	s := &Store{
		db:     db,
		driver: cfg.Driver,
		path:   cfg.Path,
		log:    logging.Component("store"),
	}

	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info("storage ready", "driver", cfg.Driver, "path", displayPath(cfg.Path))
	return s, nil
}

// dsn builds the driver-specific data source name.
func dsn(driver, path string) string {
	switch driver {
	case constants.DriverSQLite:
		if path == "" {
			// A plain :memory: DSN would give every pooled connection its
			// own private database; shared cache keeps them on one.
			return "file::memory:?mode=memory&cache=shared&_busy_timeout=5000"
		}
		// Pooled connections write concurrently; without a busy timeout
		// SQLite fails them immediately with SQLITE_BUSY.
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	default:
		// DuckDB: empty path is the in-memory database.
		return path
	}
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewStorage("init schema", err)
		}
	}
	return nil
}

// SetMaxOpenConns aligns the database/sql ceiling with the connection pool
// sitting on top of this store.
func (s *Store) SetMaxOpenConns(n int) {
	s.db.SetMaxOpenConns(n)
}

// Driver returns the active driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the database. Connections checked out through the factory
// must be closed first.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.NewStorage("close database", err)
	}
	return nil
}

// Stats holds store-level statistics.
type Stats struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	ConnsOpened int64  `json:"conns_opened"`
	ConnsClosed int64  `json:"conns_closed"`
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Driver:      s.driver,
		Path:        displayPath(s.path),
		ConnsOpened: s.connsOpened.Load(),
		ConnsClosed: s.connsClosed.Load(),
	}
}

// ============================================================================
// Connection factory
// ============================================================================

// Factory returns the connection factory the pool uses to grow and shrink.
func (s *Store) Factory() pool.Factory[*Conn] {
	return factory{store: s}
}

type factory struct {
	store *Store
}

func (f factory) Open(ctx context.Context) (*Conn, error) {
	sc, err := f.store.db.Conn(ctx)
	if err != nil {
		return nil, errors.NewStorage("open connection", err)
	}
	f.store.connsOpened.Add(1)
	return &Conn{sc: sc}, nil
}

func (f factory) Close(conn *Conn) error {
	f.store.connsClosed.Add(1)
	if err := conn.sc.Close(); err != nil {
		return errors.NewStorage("close connection", err)
	}
	return nil
}
