// Package aggregate computes windowed temperature statistics with a
// cache-first strategy: when the recency cache holds enough readings for
// the requested window the result is computed in memory, otherwise the
// query runs against pooled storage. Storage errors propagate to the
// caller; an empty window is a valid result with count zero and an
// undefined average.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/cache"
	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/reading"
)

// Storage is the pooled storage surface the aggregator queries when the
// cache cannot answer.
type Storage interface {
	AverageBetween(ctx context.Context, start, end time.Time) (*float64, int64, error)
	ReadingsBetween(ctx context.Context, start, end time.Time) ([]reading.Reading, error)
}

// Result is a windowed average. Average is nil when the window holds no
// readings. Source names where the numbers came from.
type Result struct {
	Average     *float64  `json:"average"`
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Source      string    `json:"source"`
}

// Summary is a windowed statistical summary. Min, Max, StdDev and the
// percentiles are meaningful only when Count > 0.
type Summary struct {
	Count       int64     `json:"count"`
	Average     *float64  `json:"average"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	StdDev      float64   `json:"stddev"`
	P50         float64   `json:"p50"`
	P90         float64   `json:"p90"`
	P95         float64   `json:"p95"`
	P99         float64   `json:"p99"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Source      string    `json:"source"`
}

// Aggregator answers windowed statistics queries over the cache and the
// store. It is safe for concurrent use.
type Aggregator struct {
	cache     *cache.Cache
	storage   Storage
	threshold int
	accuracy  float64
	window    time.Duration
	log       *slog.Logger

	// Concurrent identical storage queries are collapsed into one.
	group singleflight.Group

	// Statistics
	cacheHits      atomic.Int64
	storageQueries atomic.Int64
	errorCount     atomic.Int64
}

// New creates an aggregator over the given cache and storage.
func New(c *cache.Cache, s Storage, cfg config.AnalyticsConfig) *Aggregator {
	return &Aggregator{
		cache:     c,
		storage:   s,
		threshold: cfg.CacheThreshold,
		accuracy:  cfg.SketchAccuracy,
		window:    cfg.DefaultWindow,
		log:       logging.Component("aggregate"),
	}
}

// DefaultWindow returns the configured default analytics window.
func (a *Aggregator) DefaultWindow() time.Duration {
	return a.window
}

// AverageLast computes the average over the trailing window ending now.
func (a *Aggregator) AverageLast(ctx context.Context, window time.Duration) (Result, error) {
	end := time.Now().UTC()
	return a.AverageWindow(ctx, end.Add(-window), end)
}

// AverageWindow computes the mean temperature over [start, end].
//
// When the cache holds at least the threshold number of readings inside
// the window the mean is computed from the cache snapshot. Otherwise the
// query runs against storage, and a storage failure is returned to the
// caller rather than masked as an empty result.
func (a *Aggregator) AverageWindow(ctx context.Context, start, end time.Time) (Result, error) {
	if end.Before(start) {
		return Result{}, errors.ErrInvalidWindow
	}
	start, end = start.UTC(), end.UTC()

	if vals := a.cachedValues(start, end); len(vals) >= a.threshold {
		a.cacheHits.Add(1)
		avg := mean(vals)
		return Result{
			Average:     &avg,
			Count:       int64(len(vals)),
			WindowStart: start,
			WindowEnd:   end,
			Source:      constants.SourceCache,
		}, nil
	}

	a.storageQueries.Add(1)
	key := fmt.Sprintf("avg:%d:%d", start.UnixMilli(), end.UnixMilli())
	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		avg, count, err := a.storage.AverageBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		return Result{
			Average:     avg,
			Count:       count,
			WindowStart: start,
			WindowEnd:   end,
			Source:      constants.SourceStorage,
		}, nil
	})
	if err != nil {
		a.errorCount.Add(1)
		return Result{}, err
	}
	return v.(Result), nil
}

// SummaryLast computes the summary over the trailing window ending now.
func (a *Aggregator) SummaryLast(ctx context.Context, window time.Duration) (Summary, error) {
	end := time.Now().UTC()
	return a.SummaryWindow(ctx, end.Add(-window), end)
}

// SummaryWindow computes count, mean, min, max, standard deviation and
// sketch percentiles over [start, end], with the same cache-first source
// selection as AverageWindow.
func (a *Aggregator) SummaryWindow(ctx context.Context, start, end time.Time) (Summary, error) {
	if end.Before(start) {
		return Summary{}, errors.ErrInvalidWindow
	}
	start, end = start.UTC(), end.UTC()

	vals := a.cachedValues(start, end)
	source := constants.SourceCache
	if len(vals) < a.threshold {
		a.storageQueries.Add(1)
		rs, err := a.storage.ReadingsBetween(ctx, start, end)
		if err != nil {
			a.errorCount.Add(1)
			return Summary{}, err
		}
		vals = vals[:0]
		for _, r := range rs {
			vals = append(vals, r.Temperature)
		}
		source = constants.SourceStorage
	} else {
		a.cacheHits.Add(1)
	}

	s := Summary{
		Count:       int64(len(vals)),
		WindowStart: start,
		WindowEnd:   end,
		Source:      source,
	}
	if len(vals) == 0 {
		return s, nil
	}

	avg := mean(vals)
	s.Average = &avg
	s.Min, s.Max = vals[0], vals[0]
	for _, v := range vals {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}

	var sq float64
	for _, v := range vals {
		d := v - avg
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(vals)))

	sketch, err := ddsketch.NewDefaultDDSketch(a.accuracy)
	if err == nil {
		for _, v := range vals {
			sketch.Add(v)
		}
		s.P50, _ = sketch.GetValueAtQuantile(0.50)
		s.P90, _ = sketch.GetValueAtQuantile(0.90)
		s.P95, _ = sketch.GetValueAtQuantile(0.95)
		s.P99, _ = sketch.GetValueAtQuantile(0.99)
	}

	return s, nil
}

// cachedValues returns the temperatures of cached readings that fall
// inside [start, end].
func (a *Aggregator) cachedValues(start, end time.Time) []float64 {
	snapshot := a.cache.SnapshotSince(start)
	vals := make([]float64, 0, len(snapshot))
	for _, r := range snapshot {
		if r.Timestamp.After(end) {
			continue
		}
		vals = append(vals, r.Temperature)
	}
	return vals
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Stats holds aggregator statistics.
type Stats struct {
	CacheHits      int64 `json:"cache_hits"`
	StorageQueries int64 `json:"storage_queries"`
	Errors         int64 `json:"errors"`
	Threshold      int   `json:"threshold"`
}

// Stats returns aggregator statistics.
func (a *Aggregator) Stats() Stats {
	return Stats{
		CacheHits:      a.cacheHits.Load(),
		StorageQueries: a.storageQueries.Load(),
		Errors:         a.errorCount.Load(),
		Threshold:      a.threshold,
	}
}
