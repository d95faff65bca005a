package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality: no per-agent or per-token labels, since
// an attacker minting tokens could otherwise blow up label cardinality.
var (
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Agent gateway HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total agent gateway HTTP requests",
	}, []string{"method", "endpoint", "status"})

	rateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limit_rejections_total",
		Help: "Actions rejected by the per-token rate limiter",
	})

	identityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_identity_verification_failures_total",
		Help: "Identity verification calls that returned invalid or errored",
	})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_spectator_ws_connections_active",
		Help: "Currently active spectator WebSocket connections",
	})

	tickWatchdogWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_tick_watchdog_warnings_total",
		Help: "Ticks whose duration exceeded 80% of the tick period",
	})
)

// MetricsHandler exposes the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records one HTTP request's latency and outcome.
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// RecordRateLimitRejection increments the rejection counter.
func RecordRateLimitRejection() { rateLimitRejections.Inc() }

// RecordIdentityFailure increments the identity-failure counter.
func RecordIdentityFailure() { identityFailures.Inc() }

// UpdateWSConnections updates the spectator connection gauge.
func UpdateWSConnections(count int) { wsConnectionsActive.Set(float64(count)) }

// RecordTickWatchdog increments the slow-tick counter.
func RecordTickWatchdog() { tickWatchdogWarnings.Inc() }
