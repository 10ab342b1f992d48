package db

import (
	"sync"
	"time"
)

// EMA weighting for average response time: new = old*0.8 + sample*0.2.
const (
	emaOldWeight = 0.8
	emaNewWeight = 0.2
)

// HealthStats accumulates connection and transaction statistics for one pool.
// Counters are monotonically non-decreasing until the pool is closed, at which
// point they reset with it.
type HealthStats struct {
	mu sync.Mutex

	totalConnections      int64
	successfulConnections int64
	failedConnections     int64
	connectionRetries     int64
	deadlockCount         int64
	transactionTimeouts   int64

	avgResponseTime time.Duration
	maxResponseTime time.Duration
	lastHealthCheck time.Time
}

// HealthSnapshot is a point-in-time copy of HealthStats.
type HealthSnapshot struct {
	TotalConnections      int64         `json:"total_connections"`
	SuccessfulConnections int64         `json:"successful_connections"`
	FailedConnections     int64         `json:"failed_connections"`
	ConnectionRetries     int64         `json:"connection_retries"`
	DeadlockCount         int64         `json:"deadlock_count"`
	TransactionTimeouts   int64         `json:"transaction_timeouts"`
	AvgResponseTime       time.Duration `json:"avg_response_time"`
	MaxResponseTime       time.Duration `json:"max_response_time"`
	LastHealthCheck       time.Time     `json:"last_health_check"`
}

// NewHealthStats returns zeroed health statistics.
func NewHealthStats() *HealthStats {
	return &HealthStats{}
}

// RecordConnect records a connection checkout attempt.
func (h *HealthStats) RecordConnect(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalConnections++
	if ok {
		h.successfulConnections++
	} else {
		h.failedConnections++
	}
}

// RecordConnectionRetry records one retried connection attempt.
func (h *HealthStats) RecordConnectionRetry() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectionRetries++
}

// RecordResponseTime folds a response-time sample into the moving average
// and updates the observed maximum.
func (h *HealthStats) RecordResponseTime(sample time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.avgResponseTime == 0 {
		h.avgResponseTime = sample
	} else {
		h.avgResponseTime = time.Duration(float64(h.avgResponseTime)*emaOldWeight + float64(sample)*emaNewWeight)
	}
	if sample > h.maxResponseTime {
		h.maxResponseTime = sample
	}
}

// RecordDeadlock records a deadlock or serialization failure.
func (h *HealthStats) RecordDeadlock() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadlockCount++
}

// RecordTransactionTimeout records a transaction that hit its adaptive timeout.
func (h *HealthStats) RecordTransactionTimeout() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transactionTimeouts++
}

// MarkHealthCheck records when the health monitor last observed the pool.
func (h *HealthStats) MarkHealthCheck(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastHealthCheck = at
}

// Snapshot returns a consistent copy of the current statistics.
func (h *HealthStats) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		TotalConnections:      h.totalConnections,
		SuccessfulConnections: h.successfulConnections,
		FailedConnections:     h.failedConnections,
		ConnectionRetries:     h.connectionRetries,
		DeadlockCount:         h.deadlockCount,
		TransactionTimeouts:   h.transactionTimeouts,
		AvgResponseTime:       h.avgResponseTime,
		MaxResponseTime:       h.maxResponseTime,
		LastHealthCheck:       h.lastHealthCheck,
	}
}

// Reset clears all counters. Called only when the pool itself is closed.
func (h *HealthStats) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalConnections = 0
	h.successfulConnections = 0
	h.failedConnections = 0
	h.connectionRetries = 0
	h.deadlockCount = 0
	h.transactionTimeouts = 0
	h.avgResponseTime = 0
	h.maxResponseTime = 0
	h.lastHealthCheck = time.Time{}
}
