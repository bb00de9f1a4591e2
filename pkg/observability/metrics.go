// Package observability provides Prometheus metrics and health endpoints
// for the MindBridge relay server.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Relay HTTP metrics
	relayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindbridge_relay_requests_total",
			Help: "Total number of relay HTTP requests",
		},
		[]string{"status"},
	)

	relayRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mindbridge_relay_request_duration_seconds",
			Help:    "Relay HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	relayRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindbridge_relay_rate_limited_total",
			Help: "Total number of rate-limited relay requests",
		},
	)

	// Backend metrics
	backendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindbridge_backend_calls_total",
			Help: "Total number of generative backend calls",
		},
		[]string{"provider", "status"},
	)

	backendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindbridge_backend_call_duration_seconds",
			Help:    "Generative backend call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	backendTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindbridge_backend_tokens_total",
			Help: "Total tokens consumed by backend calls",
		},
		[]string{"provider", "kind"},
	)

	// Session store metrics
	sessionOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindbridge_session_operations_total",
			Help: "Total session store operations",
		},
		[]string{"op"},
	)

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			relayRequestsTotal,
			relayRequestDuration,
			relayRateLimitedTotal,
			backendCallsTotal,
			backendCallDuration,
			backendTokensTotal,
			sessionOperationsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRelayRequest records relay request metrics
func RecordRelayRequest(status string, duration time.Duration) {
	relayRequestsTotal.WithLabelValues(status).Inc()
	relayRequestDuration.Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected, rate-limited relay request
func RecordRateLimited() {
	relayRateLimitedTotal.Inc()
}

// RecordBackendCall records generative backend call metrics
func RecordBackendCall(provider, status string, duration time.Duration) {
	backendCallsTotal.WithLabelValues(provider, status).Inc()
	backendCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSessionOp counts a session store operation ("save", "load",
// "delete", "clear")
func RecordSessionOp(op string) {
	sessionOperationsTotal.WithLabelValues(op).Inc()
}

// RecordBackendTokens records token usage for a backend call
func RecordBackendTokens(provider string, promptTokens, completionTokens int) {
	backendTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	backendTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}
