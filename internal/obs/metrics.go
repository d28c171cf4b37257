package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Authentication and abuse-prevention metrics.
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome (success, invalid, locked).",
		},
		[]string{"result"},
	)

	lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts locked after exceeding the failed-attempt threshold.",
	})

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by route class.",
		},
		[]string{"class"},
	)

	revocationCheckFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocation_check_failures_total",
		Help: "Revocation store lookups that failed; validation fails closed.",
	})

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Tokens issued, by kind (access, refresh).",
		},
		[]string{"kind"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, lockouts, rateLimitRejections,
		revocationCheckFailures, tokensIssued,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountLoginAttempt records a login outcome: "success", "invalid" or "locked".
func CountLoginAttempt(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// CountLockout records an account lockout.
func CountLockout() {
	lockouts.Inc()
}

// CountRateLimitRejection records a 429 for the given route class.
func CountRateLimitRejection(class string) {
	rateLimitRejections.WithLabelValues(class).Inc()
}

// CountRevocationCheckFailure records an unreachable revocation store.
func CountRevocationCheckFailure() {
	revocationCheckFailures.Inc()
}

// CountTokenIssued records an issued token by kind.
func CountTokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
