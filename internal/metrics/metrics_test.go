package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/meteolog/internal/cache"
	"github.com/xtxerr/meteolog/internal/pool"
	"github.com/xtxerr/meteolog/internal/service"
)

func TestMetrics_RegisterStats(t *testing.T) {
	m := New()
	m.RegisterStats(func() service.Stats {
		return service.Stats{
			Ingested: 7,
			Rejected: 2,
			Cache:    cache.Stats{Size: 42, Capacity: 100, RecordCount: 50, EvictCount: 8},
			Pool:     pool.Stats{Idle: 1, Active: 2, Total: 3, Max: 5, AcquireCount: 9},
		}
	})

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]float64{
		"meteolog_cache_size":            42,
		"meteolog_cache_capacity":        100,
		"meteolog_cache_records_total":   50,
		"meteolog_cache_evictions_total": 8,
		"meteolog_pool_idle":             1,
		"meteolog_pool_active":           2,
		"meteolog_pool_total":            3,
		"meteolog_pool_max":              5,
		"meteolog_pool_acquires_total":   9,
		"meteolog_ingest_accepted_total": 7,
		"meteolog_ingest_rejected_total": 2,
	}

	got := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				got[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				got[mf.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}

	for name, value := range want {
		if got[name] != value {
			t.Errorf("expected %s = %v, got %v", name, value, got[name])
		}
	}
}

func TestMetrics_ObserveHTTP(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/readings/recent", "200", 5*time.Millisecond)
	m.ObserveHTTP("GET", "/readings/recent", "200", 7*time.Millisecond)
	m.IngestTotal.WithLabelValues("http").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `meteolog_http_requests_total{method="GET",route="/readings/recent",status="200"} 2`) {
		t.Error("expected the request counter in the exposition output")
	}
	if !strings.Contains(body, `meteolog_ingest_readings_total{origin="http"} 1`) {
		t.Error("expected the ingest counter in the exposition output")
	}
}
