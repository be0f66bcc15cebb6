package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for ExecutionsTotal.
const (
	OutcomeCompleted         = "completed"
	OutcomeFailed            = "failed"
	OutcomeReplayedCompleted = "replayed_completed"
	OutcomeReplayedFailed    = "replayed_failed"
	OutcomeError             = "error"
	OutcomeTimeout           = "timeout"
)

var (
	// ExecutionsTotal counts Execute calls by operation type and how they ended.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oplock_executions_total",
			Help: "Total number of Execute calls by outcome. operation_type is capped at 64 distinct values, the rest report as \"other\"",
		},
		[]string{"operation_type", "outcome"},
	)

	// ExecutionDuration tracks how long owned operations ran, in seconds.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oplock_execution_duration_seconds",
			Help:    "Duration of owned operation callbacks in seconds. operation_type is capped like oplock_executions_total",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"operation_type"},
	)

	// WaitPolls counts sleeps spent waiting on another owner or after a lost insert race.
	WaitPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oplock_wait_polls_total",
			Help: "Total number of wait intervals spent in Execute",
		},
		[]string{"reason"},
	)

	// StatusWriteFailures counts terminal writes that failed after the callback returned.
	StatusWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oplock_status_write_failures_total",
			Help: "Total number of terminal status writes that failed",
		},
		[]string{"status"},
	)

	// CleanupRemoved counts rows removed by CleanupExpired.
	CleanupRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oplock_cleanup_removed_total",
			Help: "Total number of expired operation locks removed",
		},
	)

	// AdminActions counts administrative overrides.
	AdminActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oplock_admin_actions_total",
			Help: "Total number of administrative lock actions",
		},
		[]string{"action"},
	)

	// EventsDropped counts lifecycle events discarded because the publish buffer was full.
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oplock_events_dropped_total",
			Help: "Total number of lifecycle events dropped before publishing",
		},
	)
)

// Label values substituted by OperationType.
const (
	UnknownOperationType = "unknown"
	OtherOperationType   = "other"
)

// maxOperationTypes bounds the distinct operation_type label values per process.
const maxOperationTypes = 64

var operationTypes = newLabelCap(maxOperationTypes)

// OperationType returns the operation_type label for t. Callers choose the
// type freely, so only the first maxOperationTypes distinct values are kept.
func OperationType(t string) string {
	return operationTypes.label(t)
}

type labelCap struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
}

func newLabelCap(limit int) *labelCap {
	return &labelCap{limit: limit, seen: make(map[string]struct{}, limit)}
}

func (c *labelCap) label(v string) string {
	if v == "" {
		return UnknownOperationType
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[v]; ok {
		return v
	}
	if len(c.seen) >= c.limit {
		return OtherOperationType
	}
	c.seen[v] = struct{}{}
	return v
}
