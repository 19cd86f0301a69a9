// Package metrics exposes the Prometheus instrumentation fedsyncd emits for
// retries, circuit breakers, sync passes, and the progress queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttempts counts retry attempts per backend operation.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_retry_attempts_total",
			Help: "Total number of retry attempts per backend operation",
		},
		[]string{"source_id", "operation"},
	)

	// RetryExhausted counts retry loops that gave up without success.
	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_retry_exhausted_total",
			Help: "Total number of retry loops that exhausted all attempts",
		},
		[]string{"source_id", "operation"},
	)

	// CircuitBreakerState reports the current gobreaker state (0=closed, 0.5=half-open, 1=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fedsync_circuit_breaker_state",
			Help: "Circuit breaker state per backend client (0=closed, 0.5=half-open, 1=open)",
		},
		[]string{"source_id"},
	)

	// CircuitBreakerTransitions counts state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"source_id", "from", "to"},
	)

	// SyncDuration tracks sync pass wall-clock duration.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedsync_sync_duration_seconds",
			Help:    "Duration of sync_source/sync_library passes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source_id", "sync_type"},
	)

	// SyncItemsProcessed counts items upserted per sync pass.
	SyncItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_sync_items_processed_total",
			Help: "Total number of media items upserted during sync",
		},
		[]string{"source_id", "library_id"},
	)

	// SyncFailures counts terminal sync failures.
	SyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_sync_failures_total",
			Help: "Total number of sync passes that ended in SyncFailed",
		},
		[]string{"source_id", "reason"},
	)

	// ProgressQueueDepth reports the number of pending/failed rows.
	ProgressQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fedsync_progress_queue_depth",
			Help: "Current depth of the playback progress sync queue",
		},
		[]string{"status"},
	)

	// ProgressQueueFlushes counts successful/failed flush attempts.
	ProgressQueueFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_progress_queue_flushes_total",
			Help: "Total number of progress queue flush attempts",
		},
		[]string{"source_id", "result"},
	)

	// EventBusDrops counts events dropped due to a lagging subscriber.
	EventBusDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsync_eventbus_drops_total",
			Help: "Total number of events dropped due to subscriber backpressure",
		},
		[]string{"subscriber"},
	)

	// ConnectionProbeDuration tracks per-connection probe latency.
	ConnectionProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedsync_connection_probe_duration_seconds",
			Help:    "Duration of connection supervisor probes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source_id"},
	)
)

// BreakerStateValue maps gobreaker state names to the gauge value convention
// used by CircuitBreakerState.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 0.5
	default:
		return 0
	}
}
