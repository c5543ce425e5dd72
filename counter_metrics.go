package softtx

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// CounterMetrics keeps in-process totals, safe for concurrent workers.
type CounterMetrics struct {
	cycles    *xsync.Counter
	cycleNS   *xsync.Counter
	delivered *xsync.Counter
	failed    *xsync.Counter
	exhausted *xsync.Counter
	errors    *xsync.Counter
	pending   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of CounterMetrics.
type MetricsSnapshot struct {
	Cycles      int64
	CycleTime   time.Duration
	Delivered   int64
	Failed      int64
	Exhausted   int64
	CycleErrors int64
	Pending     int64
}

// NewCounterMetrics returns zeroed counters.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{
		cycles:    xsync.NewCounter(),
		cycleNS:   xsync.NewCounter(),
		delivered: xsync.NewCounter(),
		failed:    xsync.NewCounter(),
		exhausted: xsync.NewCounter(),
		errors:    xsync.NewCounter(),
	}
}

// ObserveCycleDuration implements Metrics.
func (m *CounterMetrics) ObserveCycleDuration(d time.Duration) {
	m.cycles.Inc()
	m.cycleNS.Add(int64(d))
}

// AddDelivered implements Metrics.
func (m *CounterMetrics) AddDelivered(n int) { m.delivered.Add(int64(n)) }

// AddFailed implements Metrics.
func (m *CounterMetrics) AddFailed(n int) { m.failed.Add(int64(n)) }

// AddExhausted implements Metrics.
func (m *CounterMetrics) AddExhausted(n int) { m.exhausted.Add(int64(n)) }

// AddCycleErrors implements Metrics.
func (m *CounterMetrics) AddCycleErrors(n int) { m.errors.Add(int64(n)) }

// SetPending implements Metrics.
func (m *CounterMetrics) SetPending(n int) { m.pending.Store(int64(n)) }

// Snapshot returns the current totals.
func (m *CounterMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Cycles:      m.cycles.Value(),
		CycleTime:   time.Duration(m.cycleNS.Value()),
		Delivered:   m.delivered.Value(),
		Failed:      m.failed.Value(),
		Exhausted:   m.exhausted.Value(),
		CycleErrors: m.errors.Value(),
		Pending:     m.pending.Load(),
	}
}
