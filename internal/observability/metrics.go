// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts count-cache reads by key family and result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_count_cache_lookups_total",
		Help: "Count cache lookups by key family and result",
	}, []string{"family", "result"})

	// JobsProcessed counts background jobs by type and outcome.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_jobs_processed_total",
		Help: "Background jobs processed by type and outcome",
	}, []string{"type", "outcome"})

	// JobDuration records how long job handlers take.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirp_job_duration_seconds",
		Help:    "Background job handler latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// JobsEnqueued counts enqueue attempts by type and dispatcher.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_jobs_enqueued_total",
		Help: "Background jobs enqueued by type and dispatcher",
	}, []string{"type", "dispatcher"})

	// SocialToggles counts follow and like toggles by resulting action.
	SocialToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_social_toggles_total",
		Help: "Follow and like toggles by kind and action",
	}, []string{"kind", "action"})

	// EmailsSent counts notification emails by outcome.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_emails_sent_total",
		Help: "Notification emails by outcome",
	}, []string{"outcome"})

	// WebSocketConnections is the gauge of open notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chirp_websocket_connections",
		Help: "Number of open notification WebSocket connections",
	})

	// WebSocketDrops counts outbound notification frames dropped for slow or closed clients.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_websocket_drops_total",
		Help: "Notification frames dropped by reason",
	}, []string{"reason"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirp_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// ObserveJob records a finished job.
func ObserveJob(jobType string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	JobsProcessed.WithLabelValues(jobType, outcome).Inc()
	JobDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
}
