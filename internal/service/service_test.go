package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/reading"
)

func testServiceConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = constants.DriverSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "svc.db")
	cfg.Pool.MinConns = 1
	cfg.Pool.MaxConns = 2
	cfg.Analytics.CacheThreshold = 5
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rd(sensor string, temp float64, ts time.Time) reading.Reading {
	return reading.Reading{Timestamp: ts, Temperature: temp, SensorID: sensor}
}

func TestService_IngestAndRecent(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		r, err := s.Ingest(ctx, rd("room-1", 20+float64(i), now.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if r.Timestamp.Location() != time.UTC {
			t.Errorf("expected UTC timestamp, got %v", r.Timestamp.Location())
		}
	}

	got, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	if got[0].Temperature != 22 {
		t.Errorf("expected newest first (22), got %.1f", got[0].Temperature)
	}

	stats := s.Stats()
	if stats.Ingested != 3 {
		t.Errorf("expected 3 ingested, got %d", stats.Ingested)
	}
	if stats.Cache.Size != 3 {
		t.Errorf("expected 3 cached, got %d", stats.Cache.Size)
	}
}

func TestService_IngestValidation(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name    string
		r       reading.Reading
		wantErr error
	}{
		{"too cold", rd("s", -50.1, now), errors.ErrTemperatureOutOfRange},
		{"too hot", rd("s", 60.1, now), errors.ErrTemperatureOutOfRange},
		{"missing sensor", rd("", 20, now), errors.ErrMissingSensorID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Ingest(ctx, tt.r); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if s.Stats().Rejected != 3 {
		t.Errorf("expected 3 rejected, got %d", s.Stats().Rejected)
	}
	if s.Stats().Ingested != 0 {
		t.Errorf("rejected readings must not count as ingested, got %d", s.Stats().Ingested)
	}

	// Boundary values are accepted.
	if _, err := s.Ingest(ctx, rd("s", -50, now)); err != nil {
		t.Errorf("expected -50 accepted, got %v", err)
	}
	if _, err := s.Ingest(ctx, rd("s", 60, now)); err != nil {
		t.Errorf("expected 60 accepted, got %v", err)
	}
}

func TestService_IngestDefaultsTimestamp(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))

	before := time.Now().UTC()
	r, err := s.Ingest(context.Background(), reading.Reading{Temperature: 21, SensorID: "s"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	after := time.Now().UTC()

	if r.Timestamp.Before(before.Truncate(time.Second)) || r.Timestamp.After(after.Add(time.Second)) {
		t.Errorf("expected timestamp defaulted to now, got %v", r.Timestamp)
	}
}

func TestService_IngestStorageFailure(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.Ingest(ctx, rd("room-1", 20, now.Add(-time.Second))); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if s.cache.Size() != 1 {
		t.Fatalf("expected 1 cached reading, got %d", s.cache.Size())
	}

	// Cut storage out from under the still-running service.
	if err := s.storage.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	_, err := s.Ingest(ctx, rd("room-1", 21, now))
	if err == nil {
		t.Fatal("expected an error with storage closed")
	}
	if !errors.IsUnavailable(err) {
		t.Errorf("expected an unavailable error, got %v", err)
	}
	if s.cache.Size() != 1 {
		t.Errorf("reading storage never accepted must not enter the cache, size %d", s.cache.Size())
	}
	if st := s.Stats(); st.Rejected != 0 {
		t.Errorf("storage failure is not a validation reject, rejected=%d", st.Rejected)
	}
}

func TestService_Latest(t *testing.T) {
	cfg := testServiceConfig(t)
	s := newTestService(t, cfg)
	ctx := context.Background()

	if _, _, err := s.Latest(ctx); !errors.Is(err, errors.ErrNoSuchReading) {
		t.Errorf("expected ErrNoSuchReading on empty service, got %v", err)
	}

	now := time.Now().UTC()
	if _, err := s.Ingest(ctx, rd("warm", 25, now)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	r, source, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if r.SensorID != "warm" || source != constants.SourceCache {
		t.Errorf("expected cached reading from warm, got %q from %q", r.SensorID, source)
	}

	// A fresh service over the same database has a cold cache and must
	// fall back to storage.
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s2 := newTestService(t, cfg)
	r, source, err = s2.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest after reopen failed: %v", err)
	}
	if r.SensorID != "warm" || source != constants.SourceStorage {
		t.Errorf("expected stored reading from warm, got %q from %q", r.SensorID, source)
	}
}

func TestService_AverageSourceSelection(t *testing.T) {
	cfg := testServiceConfig(t)
	s := newTestService(t, cfg)
	ctx := context.Background()
	now := time.Now().UTC()

	// 6 readings in the trailing hour beats the threshold of 5.
	for i := 0; i < 6; i++ {
		if _, err := s.Ingest(ctx, rd("s", 20+float64(i), now.Add(-time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	res, err := s.Average(ctx, 0)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}
	if res.Source != constants.SourceCache {
		t.Errorf("expected cache-sourced average, got %q", res.Source)
	}
	if res.Count != 6 || res.Average == nil || *res.Average != 22.5 {
		t.Errorf("expected average 22.5 over 6, got %v over %d", res.Average, res.Count)
	}

	// Cold cache: the same query must hit storage and agree.
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s2 := newTestService(t, cfg)
	res, err = s2.Average(ctx, 0)
	if err != nil {
		t.Fatalf("Average after reopen failed: %v", err)
	}
	if res.Source != constants.SourceStorage {
		t.Errorf("expected storage-sourced average, got %q", res.Source)
	}
	if res.Count != 6 || res.Average == nil || *res.Average != 22.5 {
		t.Errorf("expected storage average 22.5 over 6, got %v over %d", res.Average, res.Count)
	}
}

func TestService_AverageEmptyWindow(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))

	res, err := s.Average(context.Background(), 0)
	if err != nil {
		t.Fatalf("Average on empty service failed: %v", err)
	}
	if res.Count != 0 || res.Average != nil {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestService_RecentLimitValidation(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()

	if _, err := s.Recent(ctx, constants.RecentLimitMax+1); !errors.Is(err, errors.ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for oversized limit, got %v", err)
	}
	if _, err := s.Recent(ctx, -1); !errors.Is(err, errors.ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for negative limit, got %v", err)
	}
	if _, err := s.Recent(ctx, constants.RecentLimitMax); err != nil {
		t.Errorf("expected max limit accepted, got %v", err)
	}
}

func TestService_ClearAll(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		if _, err := s.Ingest(ctx, rd("s", 20, now)); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	n, err := s.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 deleted, got %d", n)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no readings after clear, got %d", len(got))
	}
	if s.Stats().Cache.Size != 0 {
		t.Errorf("expected empty cache after clear, got %d", s.Stats().Cache.Size)
	}
}

func TestService_Simulate(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()

	n, err := s.Simulate(ctx, 3, 20)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if n != 60 {
		t.Errorf("expected 60 simulated readings, got %d", n)
	}

	res, err := s.Average(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}
	if res.Count != 60 {
		t.Errorf("expected all 60 readings in the window, got %d", res.Count)
	}
	if res.Average == nil || *res.Average < 10 || *res.Average > 30 {
		t.Errorf("expected a plausible simulated average, got %v", res.Average)
	}

	if _, err := s.Simulate(ctx, constants.SimulateMaxSensors+1, 10); err == nil {
		t.Error("expected error for too many sensors")
	}
	if _, err := s.Simulate(ctx, 1, constants.SimulateMaxPerSensor+1); err == nil {
		t.Error("expected error for too many readings per sensor")
	}
	if _, err := s.Simulate(ctx, 0, 10); err == nil {
		t.Error("expected error for zero sensors")
	}
}

func TestService_Summary(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		if _, err := s.Ingest(ctx, rd("s", 10+float64(i), now.Add(-time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	sum, err := s.Summary(ctx, 0)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.Count != 10 {
		t.Errorf("expected count 10, got %d", sum.Count)
	}
	if sum.Min != 10 || sum.Max != 19 {
		t.Errorf("expected min 10 max 19, got %.1f / %.1f", sum.Min, sum.Max)
	}
	if sum.Average == nil || *sum.Average != 14.5 {
		t.Errorf("expected average 14.5, got %v", sum.Average)
	}

	// The summary and the plain average must agree on the same window.
	avg, err := s.Average(ctx, 0)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}
	if avg.Average == nil || *avg.Average != *sum.Average {
		t.Errorf("summary and average disagree: %v vs %v", sum.Average, avg.Average)
	}
}

func TestService_History(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		if _, err := s.Ingest(ctx, rd("s", float64(i), now.Add(-time.Duration(4-i)*time.Minute))); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	got, err := s.History(ctx, now.Add(-3*time.Minute), now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	if !got[0].Timestamp.Before(got[2].Timestamp) {
		t.Error("expected oldest first")
	}

	if _, err := s.History(ctx, now, now.Add(-time.Hour)); err == nil {
		t.Error("expected error for inverted window")
	}
}

func TestService_CloseRejectsOperations(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}

	if _, err := s.Ingest(ctx, rd("s", 20, time.Now())); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed from Ingest, got %v", err)
	}
	if _, err := s.Recent(ctx, 10); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed from Recent, got %v", err)
	}
	if _, err := s.Average(ctx, 0); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed from Average, got %v", err)
	}
	if s.IsRunning() {
		t.Error("expected IsRunning false after Close")
	}
}

func TestService_Health(t *testing.T) {
	s := newTestService(t, testServiceConfig(t))

	h := s.Health(context.Background())
	if h.Status != "ok" {
		t.Errorf("expected status ok, got %q (%s)", h.Status, h.Error)
	}
	if !h.Stats.Running {
		t.Error("expected running in health stats")
	}
	if h.Stats.Pool.Total < 1 {
		t.Errorf("expected at least the pool floor open, got %+v", h.Stats.Pool)
	}
	if h.Stats.Cache.Capacity != s.Config().Cache.Capacity {
		t.Errorf("expected cache capacity %d, got %d", s.Config().Cache.Capacity, h.Stats.Cache.Capacity)
	}
}
