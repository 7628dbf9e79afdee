// Package metrics defines the Prometheus collectors used by the indexer and
// the query service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	BarrelLoadsTotal     *prometheus.CounterVec
	BarrelLoadDuration   prometheus.Histogram
	BarrelsResident      prometheus.Gauge
	MaterializeFailures  prometheus.Counter
	SnapshotSwapsTotal   *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	BarrelsWrittenTotal  prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
// It must be called at most once per process.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, timeout, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of matching documents per search query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result-page cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result-page cache misses.",
			},
		),
		BarrelLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barrel_loads_total",
				Help: "Barrel load attempts by status (ok, missing, error).",
			},
			[]string{"status"},
		),
		BarrelLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "barrel_load_duration_seconds",
				Help:    "Time spent reading and decoding a barrel file.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
		),
		BarrelsResident: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "barrels_resident",
				Help: "Number of decoded barrels held in memory.",
			},
		),
		MaterializeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "materialize_failures_total",
				Help: "Dataset records that could not be read or parsed during result materialization.",
			},
		),
		SnapshotSwapsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_swaps_total",
				Help: "Index snapshot reloads by status.",
			},
			[]string{"status"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents written to the forward index.",
			},
		),
		BarrelsWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "barrels_written_total",
				Help: "Total barrel files written by the builder.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BarrelLoadsTotal,
		m.BarrelLoadDuration,
		m.BarrelsResident,
		m.MaterializeFailures,
		m.SnapshotSwapsTotal,
		m.RateLimitedTotal,
		m.DocsIndexedTotal,
		m.BarrelsWrittenTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
