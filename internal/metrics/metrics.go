package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis metrics
	AnalysesRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeintel_analyses_total",
			Help: "Total number of analyses computed (cache misses)",
		},
		[]string{"analysis", "status"}, // graph/network/..., ok/empty
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeintel_analysis_duration_seconds",
			Help:    "Duration of analysis computations",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"analysis"},
	)

	GraphSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeintel_graph_size",
			Help:    "Number of nodes and edges in built correlation graphs",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"element"}, // nodes, edges
	)

	// Cache metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeintel_cache_requests_total",
			Help: "Total number of analysis cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeintel_cache_evictions_total",
			Help: "Total number of expired cache entries removed",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeintel_cache_entries",
			Help: "Number of entries currently held in the analysis cache",
		},
	)

	// Store metrics
	StoreQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeintel_store_queries_total",
			Help: "Total number of alert store queries",
		},
		[]string{"operation", "status"}, // get_alert/list_alerts/..., success/error
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeintel_store_query_duration_seconds",
			Help:    "Duration of alert store queries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Prediction metrics
	PredictionsDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeintel_predictions_degraded_total",
			Help: "Total number of cascade predictions answered with the degraded default",
		},
	)

	PredictionLikelihood = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradeintel_prediction_likelihood",
			Help:    "Distribution of cascade likelihood scores (0-100)",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeintel_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeintel_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)

	APIThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeintel_api_throttled_total",
			Help: "Total number of API requests rejected by the rate limiter",
		},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeintel_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordAnalysis records one computed analysis. empty marks an insufficient-data result.
func RecordAnalysis(analysis string, duration time.Duration, empty bool) {
	status := "ok"
	if empty {
		status = "empty"
	}
	AnalysesRun.WithLabelValues(analysis, status).Inc()
	AnalysisDuration.WithLabelValues(analysis).Observe(duration.Seconds())
}

// RecordGraphSize records the shape of a built graph
func RecordGraphSize(nodes, edges int) {
	GraphSize.WithLabelValues("nodes").Observe(float64(nodes))
	GraphSize.WithLabelValues("edges").Observe(float64(edges))
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheSweep records entries evicted by a sweep and the remaining size
func RecordCacheSweep(evicted, remaining int) {
	CacheEvictions.Add(float64(evicted))
	CacheEntries.Set(float64(remaining))
}

// RecordStoreQuery records alert store query metrics
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreQueries.WithLabelValues(operation, status).Inc()
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPrediction records a cascade prediction outcome
func RecordPrediction(likelihood float64, degraded bool) {
	if degraded {
		PredictionsDegraded.Inc()
	}
	PredictionLikelihood.Observe(likelihood)
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(route string, status int, duration time.Duration) {
	APIRequests.WithLabelValues(route, statusClass(status)).Inc()
	APIRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
