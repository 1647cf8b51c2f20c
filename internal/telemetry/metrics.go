// Package telemetry provides application-level observability for medgate.
//
// All metrics are registered against the default Prometheus registry and served
// on a side-channel HTTP server started by each binary's main:
//
//	GET http://<host>:<MGT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin routers, so it is
// never subject to the auth guard or rate limiting.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/patients/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
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

// Auth guard metrics.
//
// AuthCacheLookupsTotal is a CounterVec with a single {result} label:
// "hit" (served from the key cache), "miss" (fell through to the principal
// store), or "error" (cache unreachable, degraded to the store path).
// A sustained miss rate near 100% usually means the cache TTL is shorter than
// the credential rotation interval or the cache is being flushed.
var (
	AuthCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_cache_lookups_total",
			Help: "Total number of key cache lookups by the auth guard, by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	AuthRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Total number of rejected requests, by reason (missing_key, invalid_key).",
		},
		[]string{"reason"},
	)
)

// Telemetry emitter metrics.
//
// EmitterQueueDepth is sampled on every enqueue/dequeue; a depth pinned at the
// configured queue size means the collector cannot keep up and events are
// being dropped (see EmitterEventsDroppedTotal).
var (
	EmitterEventsQueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emitter_events_queued_total",
			Help: "Total number of telemetry events accepted into the emitter queue.",
		},
	)

	EmitterEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emitter_events_dropped_total",
			Help: "Total number of telemetry events dropped because the emitter queue was full.",
		},
	)

	EmitterDeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emitter_delivery_failures_total",
			Help: "Total number of telemetry events that could not be delivered to the collector.",
		},
	)

	EmitterQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "emitter_queue_depth",
			Help: "Current number of telemetry events waiting in the emitter queue.",
		},
	)
)

// Collector metrics.
var (
	CollectorEventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_events_recorded_total",
			Help: "Total number of telemetry events durably recorded, by status class (success, error).",
		},
		[]string{"class"},
	)

	CollectorStreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_stream_subscribers",
			Help: "Current number of open counter stream subscriptions.",
		},
	)

	CollectorStreamDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_stream_drops_total",
			Help: "Total number of counter notifications dropped because a subscriber could not keep up.",
		},
	)
)

// Reconciler metrics.
var (
	ReconcilerSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_sweeps_total",
			Help: "Total number of reconciler sweeps, by outcome (ok, error).",
		},
		[]string{"outcome"},
	)

	ReconcilerCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_appointments_cancelled_total",
			Help: "Total number of appointments auto-cancelled by the reconciler.",
		},
	)
)

// DBOpenConnections tracks the number of open connections currently held by
// the sqlx connection pool. Sampled every 30 seconds by StartDBStatsCollector
// rather than per-request to avoid the overhead of DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples the
// connection pool every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens
// naturally at shutdown once main defers db.Close().
func StartDBStatsCollector(db *sqlx.DB) {
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
