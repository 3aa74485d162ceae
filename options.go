package taskpool

import (
	"context"
	"time"
)

const (
	// DefaultPollInterval bounds how long an idle worker waits on the
	// queue before re-checking for shutdown.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultThrottleInterval is how often a throttle predicate is polled.
	DefaultThrottleInterval = 50 * time.Millisecond

	DefaultBatchSize = 1
)

// Options configure a Pool.
//
// All zero values are replaced with defaults in FillDefaults.
type Options struct {
	// BatchSize is the number of tasks a worker dequeues at once. A
	// batch is executed sequentially by that worker.
	BatchSize int

	PollInterval     time.Duration
	ThrottleInterval time.Duration

	// Metrics receives queue and execution counters. Defaults to
	// NoopMetrics.
	Metrics MetricsPolicy

	// OnTaskError is called with the terminal error of every task that
	// failed after exhausting its retries.
	OnTaskError func(error)

	// OnInternalError is called for failures of the pool itself, such
	// as a worker loop that died and was respawned.
	OnInternalError func(error)

	// PinWorkers locks each worker to an OS thread pinned to one CPU.
	// Only supported on Linux.
	PinWorkers bool

	// Context is the parent of the context handed to task actions and
	// the source of the pool's logger.
	Context context.Context

	// Name identifies the pool in logs.
	Name string
}

func (o *Options) FillDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ThrottleInterval <= 0 {
		o.ThrottleInterval = DefaultThrottleInterval
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Name == "" {
		o.Name = "taskpool"
	}
}
