package taskpool

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// MetricsPolicy defines hooks used by the pool to report queueing and
// execution activity.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// IncQueued increments the queued tasks counter.
	IncQueued()

	// BatchDecQueued decrements the queued counter by n when tasks leave
	// the queue, either dequeued by a worker or aborted.
	BatchDecQueued(n int64)

	// IncExecuted counts a task run by a worker, whatever its outcome.
	IncExecuted()

	// IncFailed counts a task that ended in the failed state.
	IncFailed()

	// IncRetried counts a retry scheduled after a failed attempt.
	IncRetried()

	// IncWorkerRestarts counts worker loops respawned after a failure.
	IncWorkerRestarts()
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	executed atomic.Uint64
	_        cpu.CacheLinePad

	queued atomic.Int64
	_      cpu.CacheLinePad

	failed   atomic.Uint64
	retried  atomic.Uint64
	restarts atomic.Uint64
}

func (m *AtomicMetrics) Executed() uint64 { return m.executed.Load() }
func (m *AtomicMetrics) Queued() int64    { return m.queued.Load() }
func (m *AtomicMetrics) Failed() uint64   { return m.failed.Load() }
func (m *AtomicMetrics) Retried() uint64  { return m.retried.Load() }
func (m *AtomicMetrics) Restarts() uint64 { return m.restarts.Load() }

func (m *AtomicMetrics) IncExecuted()           { m.executed.Add(1) }
func (m *AtomicMetrics) IncQueued()             { m.queued.Add(1) }
func (m *AtomicMetrics) BatchDecQueued(n int64) { m.queued.Add(-n) }
func (m *AtomicMetrics) IncFailed()             { m.failed.Add(1) }
func (m *AtomicMetrics) IncRetried()            { m.retried.Add(1) }
func (m *AtomicMetrics) IncWorkerRestarts()     { m.restarts.Add(1) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards
// all metric updates.
type NoopMetrics struct{}

func (m *NoopMetrics) IncQueued()             {}
func (m *NoopMetrics) BatchDecQueued(n int64) {}
func (m *NoopMetrics) IncExecuted()           {}
func (m *NoopMetrics) IncFailed()             {}
func (m *NoopMetrics) IncRetried()            {}
func (m *NoopMetrics) IncWorkerRestarts()     {}
