// Package metrics exposes Prometheus instrumentation for vibestream.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for store calls.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

var (
	// Store metrics
	StoreCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibestream_store_call_duration_seconds",
			Help:    "Duration of store calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibestream_store_retries_total",
			Help: "Total number of store calls retried after a transient failure",
		},
		[]string{"operation"},
	)

	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibestream_store_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Generation metrics
	PlaylistsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibestream_playlists_generated_total",
			Help: "Total number of playlists generated, by mood",
		},
		[]string{"mood"},
	)

	PlaylistGenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibestream_playlist_generation_failures_total",
			Help: "Total number of failed playlist generations, by mood",
		},
		[]string{"mood"},
	)

	PlaylistGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibestream_playlist_generation_duration_seconds",
			Help:    "Duration of playlist generation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Recommendation metrics
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibestream_recommendations_total",
			Help: "Total number of recommendation requests, by strategy",
		},
		[]string{"strategy"}, // "cold_start", "preference"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibestream_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibestream_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordStoreCall records the duration and outcome of a store call.
func RecordStoreCall(operation, outcome string, duration time.Duration) {
	StoreCallDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordStoreRetry counts a retried store call.
func RecordStoreRetry(operation string) {
	StoreRetries.WithLabelValues(operation).Inc()
}

// RecordGeneration records a playlist generation outcome.
func RecordGeneration(mood string, duration time.Duration, err error) {
	PlaylistGenerationDuration.Observe(duration.Seconds())
	if err != nil {
		PlaylistGenerationFailures.WithLabelValues(mood).Inc()
		return
	}
	PlaylistsGenerated.WithLabelValues(mood).Inc()
}

// RecordRecommendation counts a recommendation request.
func RecordRecommendation(strategy string) {
	Recommendations.WithLabelValues(strategy).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
