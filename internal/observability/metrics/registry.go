// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Retry and dead-letter metrics track the generic retry executor
var (
	// RetriesTotal counts retry attempts after the first, tagged with operation key and attempt number
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retries_total",
			Help: "Total number of retry attempts after the first attempt",
		},
		[]string{"key", "attempt"},
	)

	// ErrorsTotal counts operations that exhausted their retry budget
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of operations that failed after exhausting retries",
		},
		[]string{"key"},
	)

	// DLQEnqueuedTotal counts entries pushed to the dead-letter sink
	DLQEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_enqueued_total",
			Help: "Total number of dead-letter entries enqueued",
		},
		[]string{"key"},
	)

	// DLQPushFailures counts best-effort sink pushes that failed
	DLQPushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_push_failures_total",
			Help: "Total number of dead-letter pushes that failed",
		},
	)
)

// Database metrics track pool and transaction behavior
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of open database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// DBWaitingAcquires tracks callers currently waiting for a pool connection
	DBWaitingAcquires = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_waiting_acquires",
			Help: "Number of callers waiting for a pool connection",
		},
	)

	// DBPoolUtilization tracks pool utilization as a percentage
	DBPoolUtilization = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_utilization_percent",
			Help: "Connection pool utilization percentage",
		},
	)

	// DBDeadlocksTotal counts deadlock and serialization failures seen by transactions
	DBDeadlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_deadlocks_total",
			Help: "Total number of deadlock or serialization failures",
		},
	)

	// DBTransactionTimeouts counts transactions that hit their adaptive timeout
	DBTransactionTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_transaction_timeouts_total",
			Help: "Total number of transactions that timed out",
		},
	)

	// DBTransactionDuration measures transaction duration by outcome
	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"outcome"},
	)

	// DBPoolRecreations counts lazy pool recreations after termination
	DBPoolRecreations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_pool_recreations_total",
			Help: "Total number of connection pool recreations",
		},
	)
)

// RecordRetry records a retry attempt for the given operation key.
// Attempt numbering starts at 2: the first attempt is not a retry.
func RecordRetry(key string, attempt int) {
	RetriesTotal.WithLabelValues(key, strconv.Itoa(attempt)).Inc()
}

// RecordExhausted records an operation that failed after exhausting its retry budget.
func RecordExhausted(key string) {
	ErrorsTotal.WithLabelValues(key).Inc()
}

// RecordDeadLetter records a dead-letter enqueue for the given operation key.
func RecordDeadLetter(key string) {
	DLQEnqueuedTotal.WithLabelValues(key).Inc()
}

// RecordOperationDuration records the duration of a named database operation.
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
