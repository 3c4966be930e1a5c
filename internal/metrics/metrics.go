// Package metrics defines the Prometheus collectors for the backend.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the orchestration backend.
type Metrics struct {
	// WebSocket metrics
	WSConnections        *prometheus.GaugeVec
	WSMessagesSent       *prometheus.CounterVec
	WSConnectionsDropped *prometheus.CounterVec
	SweeperEvictions     prometheus.Counter

	// Job metrics
	JobsStarted    prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	JobsRejected   prometheus.Counter
	JobDuration    prometheus.Histogram
	StepsPersisted prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// New creates and registers all Prometheus metrics. Repeated calls return
// the same shared instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			WSConnections: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "crew_ws_connections",
					Help: "Number of active WebSocket connections",
				},
				[]string{"kind"},
			),
			WSMessagesSent: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "crew_ws_messages_sent_total",
					Help: "Total number of WebSocket messages delivered",
				},
				[]string{"kind"},
			),
			WSConnectionsDropped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "crew_ws_connections_dropped_total",
					Help: "Total number of WebSocket connections dropped",
				},
				[]string{"kind", "reason"},
			),
			SweeperEvictions: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "crew_ws_sweeper_evictions_total",
					Help: "Total number of idle connections evicted by the TTL sweeper",
				},
			),
			JobsStarted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "crew_jobs_started_total",
					Help: "Total number of jobs started",
				},
			),
			JobsCompleted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "crew_jobs_completed_total",
					Help: "Total number of jobs completed successfully",
				},
			),
			JobsFailed: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "crew_jobs_failed_total",
					Help: "Total number of jobs that failed",
				},
			),
			JobsRejected: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "crew_jobs_rejected_total",
					Help: "Total number of jobs rejected by the single-flight guard",
				},
			),
			JobDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "crew_job_duration_seconds",
					Help:    "Duration of jobs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
				},
			),
			StepsPersisted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "crew_steps_persisted_total",
					Help: "Total number of pipeline steps persisted",
				},
			),
		}
	})
	return sharedMetrics
}
