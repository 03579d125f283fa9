// Package telemetry provides application-level observability for the QMS
// compliance service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started from main.go:
//
//	GET http://<host>:<QMS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is deliberately not part of the Gin router
// so the scrape path stays off the public ingress and is never rate limited.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Compliance domain counters: values recorded, alerts generated, audit
//     entries logged/purged, snapshot and archive failures
//   - Background job counters (retention sweeps, alert notification emails)
//   - Database connection pool gauge (polled every 30 s)
//
// HTTP metrics use c.FullPath() (route template such as
// /api/v1/metrics/:id/values) rather than the raw URL to keep label
// cardinality bounded. Domain counters labelled by metric_id are safe because
// the metric catalog is a small static set.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL:
//   - Request rate:  rate(http_requests_total[5m])
//   - Error rate:    sum(rate(http_requests_total{status=~"5.."}[5m]))
//   - p99 latency:   histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Compliance domain counters.
//
// MetricValuesRecordedTotal counts ledger appends per catalog metric.
// AlertsGeneratedTotal counts alerts by severity; an alert rule on
// rate(compliance_alerts_generated_total{severity="critical"}[1h]) > 0 is the
// recommended way to page on sustained red metrics.
var (
	MetricValuesRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metric_values_recorded_total",
			Help: "Total number of metric values recorded, by metric ID.",
		},
		[]string{"metric_id"},
	)

	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_alerts_generated_total",
			Help: "Total number of compliance alerts generated, by severity.",
		},
		[]string{"severity"},
	)
)

// Audit trail counters.
var (
	AuditEntriesLoggedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_logged_total",
			Help: "Total number of audit trail entries recorded.",
		},
	)

	AuditEntriesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_purged_total",
			Help: "Total number of audit trail entries removed by age-based purges.",
		},
	)

	AuditArchiveFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_archive_failures_total",
			Help: "Total number of failed writes to the long-term audit archive.",
		},
	)
)

// SnapshotSaveFailuresTotal counts failed snapshot persistence calls, by
// document key. Persistence is best-effort — a failure leaves in-memory state
// authoritative — so a rising counter is the only signal that durable state is
// falling behind.
var SnapshotSaveFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "snapshot_save_failures_total",
		Help: "Total number of failed snapshot save operations, by snapshot key.",
	},
	[]string{"key"},
)

// AlertNotificationsSentTotal counts emails delivered by the alert notifier
// job. A stalled counter alongside unacknowledged critical alerts indicates
// SMTP delivery failures.
var AlertNotificationsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "alert_notifications_sent_total",
		Help: "Total number of compliance alert notification emails successfully sent.",
	},
)

// DBOpenConnections tracks the archive database connection pool, sampled every
// 30 seconds by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a goroutine sampling sql.DB pool statistics
// every 30 seconds into the DBOpenConnections gauge. It exits when the
// database becomes unreachable, which happens naturally at shutdown once
// db.Close() runs. Call once after a successful connect.
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
