// Package metrics exposes Prometheus instrumentation for the service:
// request counters and latencies from the transports, plus live gauges
// over the cache, the connection pool and the aggregation strategy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/meteolog/internal/service"
)

const namespace = "meteolog"

// Metrics holds the registry and the instruments the transports update.
type Metrics struct {
	registry *prometheus.Registry

	// IngestTotal counts accepted readings by origin (http, mqtt, simulator).
	IngestTotal *prometheus.CounterVec

	// HTTPRequests counts served requests by method, route and status.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration observes request latency by method and route.
	HTTPDuration *prometheus.HistogramVec

	// MQTTMessages counts bridge deliveries by result (ok, invalid, error).
	MQTTMessages *prometheus.CounterVec
}

// New creates a metrics set on a private registry, with the standard Go
// and process collectors attached.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IngestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Readings accepted, by origin.",
		}, []string{"origin"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MQTTMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "messages_total",
			Help:      "MQTT bridge messages, by result.",
		}, []string{"result"}),
	}
}

// RegisterStats attaches gauge and counter functions that pull live
// component statistics on every scrape.
func (m *Metrics) RegisterStats(stats func() service.Stats) {
	factory := promauto.With(m.registry)

	gauge := func(subsystem, name, help string, value func(service.Stats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stats()) })
	}
	counter := func(subsystem, name, help string, value func(service.Stats) float64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stats()) })
	}

	gauge("cache", "size", "Readings currently cached.",
		func(s service.Stats) float64 { return float64(s.Cache.Size) })
	gauge("cache", "capacity", "Configured cache capacity.",
		func(s service.Stats) float64 { return float64(s.Cache.Capacity) })
	counter("cache", "records_total", "Readings recorded into the cache.",
		func(s service.Stats) float64 { return float64(s.Cache.RecordCount) })
	counter("cache", "evictions_total", "Readings evicted from the cache.",
		func(s service.Stats) float64 { return float64(s.Cache.EvictCount) })

	gauge("pool", "idle", "Idle pooled connections.",
		func(s service.Stats) float64 { return float64(s.Pool.Idle) })
	gauge("pool", "active", "Checked-out pooled connections.",
		func(s service.Stats) float64 { return float64(s.Pool.Active) })
	gauge("pool", "total", "Open pooled connections.",
		func(s service.Stats) float64 { return float64(s.Pool.Total) })
	gauge("pool", "max", "Connection pool ceiling.",
		func(s service.Stats) float64 { return float64(s.Pool.Max) })
	counter("pool", "acquires_total", "Pool acquire attempts.",
		func(s service.Stats) float64 { return float64(s.Pool.AcquireCount) })
	counter("pool", "timeouts_total", "Pool acquires that timed out.",
		func(s service.Stats) float64 { return float64(s.Pool.TimeoutCount) })
	counter("pool", "creates_total", "Connections opened by the pool.",
		func(s service.Stats) float64 { return float64(s.Pool.CreateCount) })
	counter("pool", "discards_total", "Broken connections discarded.",
		func(s service.Stats) float64 { return float64(s.Pool.DiscardCount) })

	counter("aggregate", "cache_hits_total", "Averages answered from the cache.",
		func(s service.Stats) float64 { return float64(s.Aggregate.CacheHits) })
	counter("aggregate", "storage_queries_total", "Averages answered from storage.",
		func(s service.Stats) float64 { return float64(s.Aggregate.StorageQueries) })

	counter("ingest", "accepted_total", "Readings accepted by the service.",
		func(s service.Stats) float64 { return float64(s.Ingested) })
	counter("ingest", "rejected_total", "Readings rejected by validation.",
		func(s service.Stats) float64 { return float64(s.Rejected) })
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
