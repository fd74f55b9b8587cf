package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/pool"
	"github.com/xtxerr/meteolog/internal/reading"
)

// Pooled combines the store with a connection pool and runs every
// operation on a scoped checkout: the connection is acquired, used and
// released (or discarded after an error) within a single call.
type Pooled struct {
	store *Store
	pool  *pool.Pool[*Conn]
	log   *slog.Logger

	// Statistics
	queries atomic.Int64
	rows    atomic.Int64
	writes  atomic.Int64
	errs    atomic.Int64
}

// NewPooled opens the store and its connection pool.
func NewPooled(storageCfg config.StorageConfig, poolCfg config.PoolConfig) (*Pooled, error) {
	s, err := Open(storageCfg)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(poolCfg.MaxConns)

	p, err := pool.New(pool.Config{
		MinConns:       poolCfg.MinConns,
		MaxConns:       poolCfg.MaxConns,
		AcquireTimeout: poolCfg.AcquireTimeout,
	}, s.Factory())
	if err != nil {
		s.Close()
		return nil, err
	}

	return &Pooled{
		store: s,
		pool:  p,
		log:   logging.Component("store"),
	}, nil
}

// Insert persists one reading.
func (p *Pooled) Insert(ctx context.Context, r reading.Reading) error {
	p.writes.Add(1)
	return p.track(p.pool.With(ctx, func(c *Conn) error {
		return c.InsertReading(ctx, r)
	}))
}

// InsertBatch persists a batch of readings atomically.
func (p *Pooled) InsertBatch(ctx context.Context, rs []reading.Reading) error {
	p.writes.Add(int64(len(rs)))
	return p.track(p.pool.With(ctx, func(c *Conn) error {
		return c.InsertReadings(ctx, rs)
	}))
}

// ReadingsBetween returns all readings in [start, end], oldest first.
func (p *Pooled) ReadingsBetween(ctx context.Context, start, end time.Time) ([]reading.Reading, error) {
	p.queries.Add(1)
	var out []reading.Reading
	err := p.pool.With(ctx, func(c *Conn) error {
		var err error
		out, err = c.ReadingsBetween(ctx, start, end)
		return err
	})
	p.rows.Add(int64(len(out)))
	return out, p.track(err)
}

// AverageBetween computes the mean temperature in [start, end] in SQL.
// The average is nil when the window holds no readings.
func (p *Pooled) AverageBetween(ctx context.Context, start, end time.Time) (*float64, int64, error) {
	p.queries.Add(1)
	var avg *float64
	var count int64
	err := p.pool.With(ctx, func(c *Conn) error {
		var err error
		avg, count, err = c.AverageBetween(ctx, start, end)
		return err
	})
	return avg, count, p.track(err)
}

// Recent returns the newest readings, newest first.
func (p *Pooled) Recent(ctx context.Context, limit int) ([]reading.Reading, error) {
	p.queries.Add(1)
	var out []reading.Reading
	err := p.pool.With(ctx, func(c *Conn) error {
		var err error
		out, err = c.RecentReadings(ctx, limit)
		return err
	})
	p.rows.Add(int64(len(out)))
	return out, p.track(err)
}

// Latest returns the newest stored reading, or ErrNoSuchReading when the
// database is empty.
func (p *Pooled) Latest(ctx context.Context) (reading.Reading, error) {
	p.queries.Add(1)
	var r reading.Reading
	var found bool
	err := p.pool.With(ctx, func(c *Conn) error {
		var err error
		r, found, err = c.LatestReading(ctx)
		return err
	})
	if err != nil {
		return reading.Reading{}, p.track(err)
	}
	if !found {
		return reading.Reading{}, errors.ErrNoSuchReading
	}
	return r, nil
}

// Count returns the total number of stored readings.
func (p *Pooled) Count(ctx context.Context) (int64, error) {
	p.queries.Add(1)
	var n int64
	err := p.pool.With(ctx, func(c *Conn) error {
		var err error
		n, err = c.CountAll(ctx)
		return err
	})
	return n, p.track(err)
}

// DeleteAll removes every stored reading.
func (p *Pooled) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.With(ctx, func(c *Conn) error {
		var err error
		n, err = c.DeleteAll(ctx)
		return err
	})
	return n, p.track(err)
}

// Ping checks out a connection and verifies it answers.
func (p *Pooled) Ping(ctx context.Context) error {
	return p.track(p.pool.With(ctx, func(c *Conn) error {
		return c.Ping(ctx)
	}))
}

func (p *Pooled) track(err error) error {
	if err != nil {
		p.errs.Add(1)
	}
	return err
}

// PoolStats returns the connection pool statistics.
func (p *Pooled) PoolStats() pool.Stats {
	return p.pool.Stats()
}

// StoreStats returns the underlying store statistics.
func (p *Pooled) StoreStats() Stats {
	return p.store.Stats()
}

// QueryStats holds counters for operations run through the pooled store.
type QueryStats struct {
	Queries int64 `json:"queries"`
	Rows    int64 `json:"rows"`
	Writes  int64 `json:"writes"`
	Errors  int64 `json:"errors"`
}

// QueryStats returns operation counters.
func (p *Pooled) QueryStats() QueryStats {
	return QueryStats{
		Queries: p.queries.Load(),
		Rows:    p.rows.Load(),
		Writes:  p.writes.Load(),
		Errors:  p.errs.Load(),
	}
}

// Close shuts the pool down first, closing every pooled connection, then
// closes the database.
func (p *Pooled) Close() error {
	var errs []error
	if err := p.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	p.log.Info("storage closed")
	return nil
}
