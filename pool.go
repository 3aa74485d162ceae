package taskpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
	"go.uber.org/multierr"
)

// Pool runs submitted tasks on a fixed number of workers, lowest priority
// value first.
//
// The life cycle is idle → started → stopping → stopped. A pool cannot be
// restarted after it has been stopped.
type Pool struct {
	opts       Options
	maxWorkers int

	q       *taskQueue
	gate    *throttleGate
	metrics MetricsPolicy

	// mu guards started and closed. Submit holds the read lock while
	// pushing so that no push can land after shutdown was signaled.
	mu      sync.RWMutex
	started bool
	closed  bool

	stopCh   chan struct{}
	stopOnce sync.Once

	runCtx    context.Context
	cancelRun context.CancelCauseFunc

	wg       sync.WaitGroup
	exited   chan struct{}
	restarts atomic.Int64

	activeWorkers atomic.Int32
}

// NewPool creates an idle pool. A negative maxWorkers is treated as zero.
func NewPool(maxWorkers int, opts Options) *Pool {
	if maxWorkers < 0 {
		maxWorkers = 0
	}
	opts.FillDefaults()

	runCtx, cancel := context.WithCancelCause(opts.Context)
	return &Pool{
		opts:       opts,
		maxWorkers: maxWorkers,
		q:          newTaskQueue(),
		gate:       newThrottleGate(opts.ThrottleInterval),
		metrics:    opts.Metrics,
		stopCh:     make(chan struct{}),
		runCtx:     runCtx,
		cancelRun:  cancel,
		exited:     make(chan struct{}),
	}
}

// Start spawns the workers. It fails with ErrPoolStarted when called twice
// and with ErrPoolClosed after the pool was stopped.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrPoolStarted
	}
	if p.closed {
		return ErrPoolClosed
	}
	p.started = true

	for i := 0; i < p.maxWorkers; i++ {
		w := &worker{
			id:           i,
			q:            p.q,
			stop:         p.stopCh,
			gate:         p.gate,
			pollInterval: p.opts.PollInterval,
			batchSize:    p.opts.BatchSize,
			metrics:      p.metrics,
			active:       &p.activeWorkers,
			onTaskError:  p.reportTaskError,
			onMisuse:     p.reportInternalError,
		}
		p.wg.Add(1)
		go p.supervise(w)
	}
	go func() {
		p.wg.Wait()
		close(p.exited)
	}()

	lg.FromContext(p.opts.Context).Info("Pool started",
		lg.String("pool", p.opts.Name),
		lg.Int("workers", p.maxWorkers),
		lg.Int("batch_size", p.opts.BatchSize),
	)
	return nil
}

// supervise runs a worker loop and respawns it in the same slot when it
// dies of an infrastructure failure.
func (p *Pool) supervise(w *worker) {
	defer p.wg.Done()

	if p.opts.PinWorkers {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := PinToCPU(w.id % runtime.NumCPU()); err != nil {
			p.reportInternalError(&WorkerError{Worker: w.id, Err: err})
		}
	}

	for {
		err := w.run(p.runCtx)
		if err == nil {
			return
		}
		p.restarts.Add(1)
		p.metrics.IncWorkerRestarts()
		lg.FromContext(p.opts.Context).Error("Worker died; respawning", lg.Int("worker", w.id), lg.Any("error", err))
		p.reportInternalError(err)
	}
}

// Submit queues a job. It never waits for the job to run. Jobs may be
// submitted before Start; they run once workers exist.
func (p *Pool) Submit(j Job) error {
	if j == nil {
		return ErrNilTask
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := j.claim(); err != nil {
		return err
	}
	p.q.push(j)
	p.metrics.IncQueued()

	lg.FromContext(p.opts.Context).Info("Task submitted",
		lg.String("task", j.Name()),
		lg.Int("priority", j.Priority()),
	)
	return nil
}

// Submit queues t on p and returns t for chaining into Await.
func Submit[T any](p *Pool, t *Task[T]) (*Task[T], error) {
	if t == nil {
		return nil, ErrNilTask
	}
	if err := p.Submit(t); err != nil {
		return t, err
	}
	return t, nil
}

// SubmitWait queues t and blocks until it resolves or ctx ends.
func SubmitWait[T any](ctx context.Context, p *Pool, t *Task[T]) (T, error) {
	if _, err := Submit(p, t); err != nil {
		var zero T
		return zero, err
	}
	return t.Await(ctx)
}

// signalShutdown marks the pool closed, wakes every worker and lifts
// throttles and drain fences. It reports whether the pool was started.
func (p *Pool) signalShutdown() bool {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.gate.lift()
	p.q.openFences()
	return started
}

// Shutdown stops the pool gracefully: new submissions are rejected, every
// queued task still runs, and Shutdown returns once the queue is drained
// and all workers exited. If ctx ends first its error is returned; the
// pool keeps draining and Shutdown may be called again.
//
// Tasks queued on a pool that was never started are failed with
// ErrPoolClosed.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.signalShutdown() {
		n := p.q.abortAll(ErrPoolClosed)
		p.metrics.BatchDecQueued(int64(n))
		return nil
	}
	lg.FromContext(p.opts.Context).Info("Pool shutting down", lg.Int("queued", p.q.len()))

	if err := p.q.join(ctx); err != nil {
		return err
	}
	if err := p.Wait(ctx); err != nil {
		return err
	}
	lg.FromContext(p.opts.Context).Info("Pool stopped")
	return nil
}

// Stop is a blocking graceful stop.
func (p *Pool) Stop() { _ = p.Shutdown(context.Background()) }

// StopNow stops the pool without draining. Queued tasks that have not
// started fail with ErrPoolStopped, the context handed to running actions
// is canceled and pending retries are abandoned. It does not wait; use
// Wait to block until the workers exit.
func (p *Pool) StopNow() {
	p.signalShutdown()
	p.cancelRun(ErrPoolStopped)
	n := p.q.abortAll(ErrPoolStopped)
	p.metrics.BatchDecQueued(int64(n))
	lg.FromContext(p.opts.Context).Warn("Pool stopped without draining", lg.Int("aborted", n))
}

// Wait blocks until every worker has exited. It returns immediately for a
// pool that was never started.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return nil
	}
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until every task queued or running at the time of the call
// has been processed. Tasks submitted meanwhile are held back and released
// afterwards. The pool keeps running.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return p.q.join(ctx)
	}
	return p.q.fence(ctx)
}

// Throttle pauses dequeuing until cond reports true. cond is polled every
// Options.ThrottleInterval by one worker at a time and is dropped once it
// returns true. A nil cond lifts the current throttle. Throttling is
// ignored once shutdown has been signaled.
func (p *Pool) Throttle(cond func() bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.gate.set(cond)
}

// Run starts the pool, calls fn and shuts the pool down on every exit
// path, panics included. The shutdown is bounded by ctx.
func (p *Pool) Run(ctx context.Context, fn func(*Pool) error) (err error) {
	if err := p.Start(); err != nil {
		return err
	}
	defer func() {
		r := recover()
		serr := p.Shutdown(ctx)
		if r != nil {
			panic(r)
		}
		err = multierr.Append(err, serr)
	}()
	return fn(p)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers       int
	ActiveWorkers int32
	Queued        int
	InFlight      int
	Restarts      int64
	Throttled     bool
	Started       bool
	Closed        bool
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	started, closed := p.started, p.closed
	p.mu.RUnlock()
	return Stats{
		Workers:       p.maxWorkers,
		ActiveWorkers: p.activeWorkers.Load(),
		Queued:        p.q.len(),
		InFlight:      p.q.inFlight(),
		Restarts:      p.restarts.Load(),
		Throttled:     p.gate.active(),
		Started:       started,
		Closed:        closed,
	}
}

func (p *Pool) Workers() int         { return p.maxWorkers }
func (p *Pool) ActiveWorkers() int32 { return p.activeWorkers.Load() }
func (p *Pool) QueueLength() int     { return p.q.len() }
func (p *Pool) Restarts() int64      { return p.restarts.Load() }
