package taskpool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// worker pulls jobs from the shared queue and runs them one at a time
// until shutdown is signaled and the queue is empty.
type worker struct {
	id           int
	q            *taskQueue
	stop         <-chan struct{}
	gate         *throttleGate
	pollInterval time.Duration
	batchSize    int

	metrics     MetricsPolicy
	active      *atomic.Int32
	onTaskError func(error)
	onMisuse    func(error)
}

func (w *worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// run is the worker loop. It returns nil on normal exit and a
// *WorkerError when an infrastructure failure ended the loop.
func (w *worker) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerError{Worker: w.id, Err: &PanicError{Value: r}}
		}
	}()

	for {
		if w.stopping() && w.q.empty() {
			return nil
		}
		throttled, gerr := w.gate.wait(w.stop)
		if gerr != nil {
			return &WorkerError{Worker: w.id, Err: gerr}
		}

		batch, perr := w.q.popBatch(w.stop, throttled, w.batchSize, w.pollInterval)
		switch {
		case errors.Is(perr, errPollTimeout), errors.Is(perr, errQueueClosed), errors.Is(perr, errInterrupted):
			continue
		case perr != nil:
			return &WorkerError{Worker: w.id, Err: perr}
		}
		w.metrics.BatchDecQueued(int64(len(batch)))

		if berr := w.runBatch(ctx, batch); berr != nil {
			return berr
		}
	}
}

// runBatch runs the batch sequentially. Entries left over when the pool is
// stopped without draining are aborted; entries left over after a worker
// failure go back to the queue in their original order.
func (w *worker) runBatch(ctx context.Context, batch []*entry) (err error) {
	next := 0
	defer func() {
		rest := batch[next:]
		if len(rest) == 0 {
			return
		}
		if ctx.Err() != nil {
			for _, e := range rest {
				e.job.abort(context.Cause(ctx))
				w.q.taskDone()
			}
			return
		}
		w.q.requeue(rest)
		for range rest {
			w.metrics.IncQueued()
		}
	}()

	for next < len(batch) {
		j := batch[next].job
		next++
		if ctx.Err() != nil {
			j.abort(context.Cause(ctx))
			w.q.taskDone()
			continue
		}
		if err := w.process(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) process(ctx context.Context, j Job) (err error) {
	defer w.q.taskDone()
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerError{Worker: w.id, Err: &PanicError{Value: r}}
			j.abort(err)
		}
	}()

	w.active.Add(1)
	defer w.active.Add(-1)

	logger := lg.FromContext(ctx).With(lg.Int("worker", w.id), lg.String("task", j.Name()))
	logger.Info("Worker processing task",
		lg.Int("priority", j.Priority()),
		lg.Int32("active_workers", w.active.Load()),
	)

	terr := j.execute(ctx, w.metrics.IncRetried)
	switch {
	case terr == nil:
		w.metrics.IncExecuted()
		logger.Info("Worker finished task")
	case errors.Is(terr, ErrTaskRunning), errors.Is(terr, ErrTaskResolved):
		logger.Error("Task could not be executed", lg.Any("error", terr))
		w.onMisuse(terr)
	default:
		w.metrics.IncExecuted()
		w.metrics.IncFailed()
		logger.Error("Task failed", lg.Any("error", terr))
		w.onTaskError(terr)
	}
	return nil
}
