// Package telemetry provides logging setup and Prometheus metrics for ServerSoft.
//
// All metrics are registered against the default registry and exposed by the
// side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<SERVERSOFT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use the gin route template (c.FullPath()) as the path label,
// never the raw URL, to keep label cardinality bounded.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "serversoft"

// HTTP metrics, labelled by method, route template and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies, by method and route template.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// APIKeyAuthTotal counts API key authentication attempts by result
// (ok, invalid, expired, forbidden).
var APIKeyAuthTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "apikey_auth_total",
		Help:      "API key authentication attempts, by result.",
	},
	[]string{"result"},
)

// CredentialDecryptFailuresTotal counts values that could not be decrypted
// and were returned still encrypted. A non-zero rate usually means
// ENCRYPTION_KEY changed.
var CredentialDecryptFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_decrypt_failures_total",
		Help:      "Total number of stored secrets that failed to decrypt.",
	},
)

// Webhook relay metrics.
var (
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Outbound workflow webhook deliveries, by event and result.",
		},
		[]string{"event", "result"},
	)

	WebhookRelayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_relay_duration_seconds",
			Help:      "Latency of the downstream call made for a webhook delivery or callback relay.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// SSHProbesTotal counts SSH metric probes by result (ok, error).
var SSHProbesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ssh_probes_total",
		Help:      "SSH server metric probes, by result.",
	},
	[]string{"result"},
)

// CredentialVerificationsTotal counts cloud credential verification calls.
var CredentialVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_verifications_total",
		Help:      "Cloud provider credential verifications, by provider and result.",
	},
	[]string{"provider", "result"},
)

// APIKeyExpiryNotificationsSentTotal is incremented once per expiry warning
// email successfully delivered.
var APIKeyExpiryNotificationsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "apikey_expiry_notifications_sent_total",
		Help:      "Total number of API key expiry warning emails successfully sent.",
	},
)

// HTTPRequestsInFlight tracks requests currently being served. Websocket
// streams are excluded.
var HTTPRequestsInFlight = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Current number of HTTP requests being served, excluding websocket streams.",
	},
)

// BackgroundPanicsTotal counts panics recovered in safego goroutines.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "background_panics_total",
		Help:      "Panics recovered in background goroutines, by task name.",
	},
	[]string{"task"},
)

// EventSubscribers tracks open websocket event connections.
var EventSubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_subscribers",
		Help:      "Current number of connected websocket event subscribers.",
	},
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled every 30 s.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_open_connections",
		Help:      "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds until the
// database becomes unreachable (which happens after db.Close on shutdown).
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
