package agent

import (
	"sync/atomic"
	"time"
)

// Metrics tracks per-agent request counters with atomic updates. The
// identity requests_handled == requests_succeeded + requests_failed holds
// after every completed HandleRequest.
type Metrics struct {
	handled   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	totalNs   atomic.Int64
}

// MetricsSnapshot is an immutable view of the counters.
type MetricsSnapshot struct {
	RequestsHandled    int64   `json:"requests_handled"`
	RequestsSucceeded  int64   `json:"requests_succeeded"`
	RequestsFailed     int64   `json:"requests_failed"`
	TotalExecutionTime float64 `json:"total_execution_time"` // seconds
	AvgExecutionTime   float64 `json:"avg_execution_time"`   // seconds
}

func (m *Metrics) recordSuccess(elapsed time.Duration) {
	m.handled.Add(1)
	m.succeeded.Add(1)
	m.totalNs.Add(int64(elapsed))
}

func (m *Metrics) recordFailure(elapsed time.Duration) {
	m.handled.Add(1)
	m.failed.Add(1)
	m.totalNs.Add(int64(elapsed))
}

// Snapshot returns the current counter values. The average is derived at
// read time, so counts and averages are only eventually consistent with
// each other under concurrent updates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	handled := m.handled.Load()
	total := time.Duration(m.totalNs.Load()).Seconds()

	s := MetricsSnapshot{
		RequestsHandled:    handled,
		RequestsSucceeded:  m.succeeded.Load(),
		RequestsFailed:     m.failed.Load(),
		TotalExecutionTime: total,
	}
	if handled > 0 {
		s.AvgExecutionTime = total / float64(handled)
	}
	return s
}

// SuccessRate returns the fraction of handled requests that succeeded, or
// 1.0 before any request has been handled.
func (s MetricsSnapshot) SuccessRate() float64 {
	if s.RequestsHandled == 0 {
		return 1.0
	}
	return float64(s.RequestsSucceeded) / float64(s.RequestsHandled)
}
