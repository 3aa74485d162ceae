// Package taskpool provides an in-process, priority-aware worker pool
// with per-task retries and a graceful shutdown protocol.
//
// Architecture overview
//
// The pool is composed of three layers:
//
//  1. Queue
//     One pool-wide priority queue. Tasks leave in ascending priority
//     value; tasks with equal priority leave in submission order. The
//     queue is unbounded and safe for concurrent producers and consumers.
//
//  2. Workers
//     A fixed number of worker loops, spawned by Start. Each worker
//     dequeues one task (or one batch, see Options.BatchSize), runs it to
//     its final outcome, acknowledges it, and repeats. An idle worker
//     waits on the queue for at most Options.PollInterval and wakes
//     immediately when shutdown is signaled.
//
//  3. Tasks
//     A Task carries a priority, an ActionFactory, arguments and a
//     RetryPolicy. Its result is a single-assignment slot that any number
//     of goroutines can Await.
//
// Retries
//
// Retrying is the task's own business: the worker that dequeued a task
// keeps it until the final outcome. After the n-th failed attempt the
// task sleeps BackoffBase * 2^(n-1) and builds a fresh action from the
// factory. A task with MaxRetries = N makes at most N+1 attempts. The
// terminal error is a *TaskError that unwraps to the last attempt's
// error.
//
// Shutdown
//
// Shutdown (and Stop) reject new submissions, let workers drain every
// queued task and return once all workers have exited. StopNow rejects
// new submissions, fails queued tasks with ErrPoolStopped and cancels the
// context handed to running actions without waiting.
//
// Flow control
//
// Drain waits for the current backlog to be processed while holding back
// newer submissions. Throttle pauses dequeuing until a predicate holds.
//
// Error handling
//
// Task errors reach only the task's observers and Options.OnTaskError.
// Usage errors (ErrPoolStarted, ErrPoolClosed, ...) are returned to the
// caller. A worker loop that dies of an internal failure is reported via
// Options.OnInternalError and respawned in the same slot, so the number
// of workers never changes. Panics inside actions are recovered and
// count as failed attempts.
//
// Typical use:
//
//	p := taskpool.NewPool(8, taskpool.Options{})
//	err := p.Run(ctx, func(p *taskpool.Pool) error {
//		t := taskpool.NewTask(1, fetchFactory, taskpool.WithMaxRetries(3))
//		v, err := taskpool.SubmitWait(ctx, p, t)
//		...
//	})
package taskpool
