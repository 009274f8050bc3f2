// Package telemetry exposes Prometheus collectors for the proxy.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// --- METRIC DEFINITIONS ---

var (
	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_admissions_total",
			Help: "Total number of rate limit decisions, labeled by decision.",
		},
		[]string{"decision"},
	)

	strategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_strategy_attempts_total",
			Help: "Total number of strategy attempts, labeled by stage and result.",
		},
		[]string{"stage", "result"},
	)

	strategyDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_strategy_duration_seconds",
			Help:    "Histogram of strategy attempt latencies, labeled by stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"stage"},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_outcomes_total",
			Help: "Total number of fetch outcomes, labeled by kind.",
		},
		[]string{"kind"},
	)

	trackedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_ratelimit_clients",
			Help: "Number of client identities currently tracked by the rate limiter.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// --- HTTP HANDLER & MIDDLEWARE ---

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// --- HELPER FUNCTIONS ---

// ObserveAdmission records a rate limit decision.
func ObserveAdmission(allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "admitted"
	}
	admissionsTotal.WithLabelValues(decision).Inc()
}

// SetTrackedClients records the size of the rate limiter map.
func SetTrackedClients(n int) {
	trackedClients.Set(float64(n))
}

// ObserveStrategy records a single strategy attempt. result is "success" or a failure reason.
func ObserveStrategy(stage, result string, duration time.Duration) {
	strategyAttemptsTotal.WithLabelValues(stage, result).Inc()
	strategyDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveOutcome records the final outcome kind of a fetch.
func ObserveOutcome(kind string) {
	outcomesTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
