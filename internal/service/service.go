// Package service wires the cache, the pooled store and the aggregator into
// the operations the transports expose.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/aggregate"
	"github.com/xtxerr/meteolog/internal/cache"
	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/pool"
	"github.com/xtxerr/meteolog/internal/reading"
	"github.com/xtxerr/meteolog/internal/store"
	"github.com/xtxerr/meteolog/internal/validation"
)

// Service orchestrates the reading pipeline: validated readings go to
// storage first and the recency cache second, queries pick the cheapest
// source that can answer.
type Service struct {
	cfg        *config.Config
	cache      *cache.Cache
	storage    *store.Pooled
	aggregator *aggregate.Aggregator
	log        *slog.Logger

	// State
	running   atomic.Bool
	startTime time.Time

	// Statistics
	ingestCount atomic.Int64
	rejectCount atomic.Int64
}

// New builds the service from configuration. The storage floor is opened
// eagerly; a failure there fails construction.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := cache.New(cfg.Cache.Capacity)

	st, err := store.NewPooled(cfg.Storage, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	agg := aggregate.New(c, st, cfg.Analytics)

	s := &Service{
		cfg:        cfg,
		cache:      c,
		storage:    st,
		aggregator: agg,
		log:        logging.Component("service"),
		startTime:  time.Now(),
	}
	s.running.Store(true)

	s.log.Info("service ready",
		"cache_capacity", cfg.Cache.Capacity,
		"pool_min", cfg.Pool.MinConns,
		"pool_max", cfg.Pool.MaxConns,
		"driver", cfg.Storage.Driver)
	return s, nil
}

// ============================================================================
// Ingest path
// ============================================================================

// Ingest validates, persists and caches one reading. A missing timestamp
// defaults to now. The reading only reaches the cache after storage
// accepted it, so the two never disagree on a partial write.
func (s *Service) Ingest(ctx context.Context, r reading.Reading) (reading.Reading, error) {
	if !s.running.Load() {
		return reading.Reading{}, errors.ErrClosed
	}

	r = r.Normalized(time.Now())
	if err := r.Validate(); err != nil {
		s.rejectCount.Add(1)
		return reading.Reading{}, err
	}

	if err := s.storage.Insert(ctx, r); err != nil {
		return reading.Reading{}, err
	}
	s.cache.Record(r)
	s.ingestCount.Add(1)

	logging.WithContext(ctx).Debug("reading ingested",
		"sensor_id", r.SensorID,
		"temperature", r.Temperature,
		"timestamp", r.Timestamp)
	return r, nil
}

// IngestBatch validates, persists and caches a batch. The batch is
// all-or-nothing: one invalid reading rejects it, and storage commits it
// in a single transaction before any reading enters the cache.
func (s *Service) IngestBatch(ctx context.Context, rs []reading.Reading) (int, error) {
	if !s.running.Load() {
		return 0, errors.ErrClosed
	}

	now := time.Now()
	normalized := make([]reading.Reading, len(rs))
	for i, r := range rs {
		n := r.Normalized(now)
		if err := n.Validate(); err != nil {
			s.rejectCount.Add(1)
			return 0, fmt.Errorf("reading %d: %w", i, err)
		}
		normalized[i] = n
	}

	if err := s.storage.InsertBatch(ctx, normalized); err != nil {
		return 0, err
	}
	for _, r := range normalized {
		s.cache.Record(r)
	}
	s.ingestCount.Add(int64(len(normalized)))
	return len(normalized), nil
}

// ============================================================================
// Query path
// ============================================================================

// Recent returns the newest stored readings, newest first. A zero limit
// selects the default; limits outside 1..100 are rejected.
func (s *Service) Recent(ctx context.Context, limit int) ([]reading.Reading, error) {
	if !s.running.Load() {
		return nil, errors.ErrClosed
	}

	if limit == 0 {
		limit = constants.RecentLimitDefault
	}
	if err := validation.ValidateLimit(limit); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errors.ErrInvalidLimit)
	}
	return s.storage.Recent(ctx, limit)
}

// Latest returns the newest reading and which source answered. The cache
// answers when it holds anything; otherwise storage is asked, and an empty
// database yields ErrNoSuchReading.
func (s *Service) Latest(ctx context.Context) (reading.Reading, string, error) {
	if !s.running.Load() {
		return reading.Reading{}, "", errors.ErrClosed
	}

	if recent := s.cache.MostRecent(1); len(recent) == 1 {
		return recent[0], constants.SourceCache, nil
	}

	r, err := s.storage.Latest(ctx)
	if err != nil {
		return reading.Reading{}, "", err
	}
	return r, constants.SourceStorage, nil
}

// History returns all stored readings in [start, end], oldest first.
func (s *Service) History(ctx context.Context, start, end time.Time) ([]reading.Reading, error) {
	if !s.running.Load() {
		return nil, errors.ErrClosed
	}
	if err := validation.ValidateWindow(start, end); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errors.ErrInvalidWindow)
	}
	return s.storage.ReadingsBetween(ctx, start, end)
}

// Average computes the mean temperature over the trailing window. A zero
// window selects the configured default.
func (s *Service) Average(ctx context.Context, window time.Duration) (aggregate.Result, error) {
	if !s.running.Load() {
		return aggregate.Result{}, errors.ErrClosed
	}
	if window <= 0 {
		window = s.aggregator.DefaultWindow()
	}
	return s.aggregator.AverageLast(ctx, window)
}

// Summary computes the statistical summary over the trailing window. A
// zero window selects the configured default.
func (s *Service) Summary(ctx context.Context, window time.Duration) (aggregate.Summary, error) {
	if !s.running.Load() {
		return aggregate.Summary{}, errors.ErrClosed
	}
	if window <= 0 {
		window = s.aggregator.DefaultWindow()
	}
	return s.aggregator.SummaryLast(ctx, window)
}

// ============================================================================
// Maintenance
// ============================================================================

// ClearAll removes every reading from storage and the cache.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	if !s.running.Load() {
		return 0, errors.ErrClosed
	}

	n, err := s.storage.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.cache.Clear()

	s.log.Info("readings cleared", "deleted", n)
	return n, nil
}

// Health reports whether storage answers and the current component stats.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status: "ok",
		Stats:  s.Stats(),
	}
	if !s.running.Load() {
		h.Status = "closed"
		return h
	}
	if err := s.storage.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.Error = err.Error()
	}
	return h
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// IsRunning reports whether the service accepts operations.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Close shuts the service down. Pending pooled connections are closed;
// subsequent operations fail with ErrClosed. Close is idempotent.
func (s *Service) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.log.Info("service closing", "uptime", time.Since(s.startTime).Round(time.Second))
	return s.storage.Close()
}

// ============================================================================
// Statistics
// ============================================================================

// Health is the service health report.
type Health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stats  Stats  `json:"stats"`
}

// Stats combines the statistics of every component.
type Stats struct {
	Running   bool            `json:"running"`
	UptimeSec int64           `json:"uptime_sec"`
	Ingested  int64           `json:"ingested"`
	Rejected  int64           `json:"rejected"`
	Cache     cache.Stats     `json:"cache"`
	Pool      pool.Stats      `json:"pool"`
	Store     store.Stats     `json:"store"`
	Queries   store.QueryStats `json:"queries"`
	Aggregate aggregate.Stats `json:"aggregate"`
}

// Stats returns a snapshot of all component statistics.
func (s *Service) Stats() Stats {
	return Stats{
		Running:   s.running.Load(),
		UptimeSec: int64(time.Since(s.startTime).Seconds()),
		Ingested:  s.ingestCount.Load(),
		Rejected:  s.rejectCount.Load(),
		Cache:     s.cache.Stats(),
		Pool:      s.storage.PoolStats(),
		Store:     s.storage.StoreStats(),
		Queries:   s.storage.QueryStats(),
		Aggregate: s.aggregator.Stats(),
	}
}

// Cache exposes the recency cache for metrics collectors.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// PoolStats exposes pool statistics for metrics collectors.
func (s *Service) PoolStats() pool.Stats {
	return s.storage.PoolStats()
}
