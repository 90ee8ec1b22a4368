package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Backend API calls by endpoint and status (success, error, not_found, rate_limited, circuit_open).
	BackendAPICallsTotal *prometheus.CounterVec

	// Backend latency per call. Watch for: p95 > 2s (upstream degradation).
	BackendAPIDuration *prometheus.HistogramVec

	// Retry attempts against the backend. High values mean an unstable upstream.
	BackendAPIRetriesTotal prometheus.Counter

	// Cache hits and misses by cacheType (weather, catalog).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend failures by operation (get, set). Cache errors never fail a request.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache warming runs, failed runs and run duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Weather lookups per region. Unknown tags are counted as "other".
	WeatherQueriesByRegionTotal *prometheus.CounterVec

	// Region weather session loads by outcome (ok, missing, cancelled).
	SessionLoadsTotal *prometheus.CounterVec

	// Catalog refreshes by status, plus the size of the last good catalog.
	CatalogRefreshTotal   *prometheus.CounterVec
	CatalogCertifications prometheus.Gauge

	// Circuit breaker state: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState prometheus.Gauge

	// 1 after the recovery probes gave up, 0 once a probe succeeds.
	RecoveryExhausted prometheus.Gauge

	// Rate limit denials (429).
	RateLimitDeniedTotal prometheus.Counter

	knownRegions map[string]struct{}

	windowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	BackendAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendApiCallsTotal",
			Help: "Total number of exam backend API calls",
		},
		[]string{"endpoint", "status"},
	)
	BackendAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendApiDurationSeconds",
			Help:    "Exam backend latency in seconds (per call)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	BackendAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backendApiRetriesTotal",
			Help: "Total number of retry attempts for backend calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend errors",
		},
		[]string{"op"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed region",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming runs",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	WeatherQueriesByRegionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByRegionTotal",
			Help: "Weather queries by forecast region",
		},
		[]string{"region"},
	)
	SessionLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionLoadsTotal",
			Help: "Per-region results of session weather loads",
		},
		[]string{"outcome"},
	)
	CatalogRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogRefreshTotal",
			Help: "Catalog rebuilds by status",
		},
		[]string{"status"},
	)
	CatalogCertifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalogCertifications",
			Help: "Number of certifications in the current catalog",
		},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Backend circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
	RecoveryExhausted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendRecoveryExhausted",
			Help: "1 while the backend is still down after the last recovery probe",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		BackendAPICallsTotal, BackendAPIDuration, BackendAPIRetriesTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		WeatherQueriesByRegionTotal, SessionLoadsTotal,
		CatalogRefreshTotal, CatalogCertifications,
		CircuitBreakerState,
		RecoveryExhausted,
		RateLimitDeniedTotal,
	)

	knownRegions = make(map[string]struct{})
	for _, r := range region.All() {
		knownRegions[string(r)] = struct{}{}
	}
}

// RegisterWindowGauges registers sliding-window gauges backed by the traffic tracker.
// Call from main after config load with the health window.
func RegisterWindowGauges(window time.Duration) {
	windowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "requestsInWindow",
					Help: "Outcomes recorded in the health window",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the health window",
				},
				func() float64 { return float64(traffic.Count(traffic.Denied, window)) },
			),
		)
	})
}

// RecordWeatherQuery counts a weather lookup for r.
func RecordWeatherQuery(r region.Region) {
	label := string(r)
	if _, ok := knownRegions[label]; !ok {
		label = "other"
	}
	WeatherQueriesByRegionTotal.WithLabelValues(label).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
