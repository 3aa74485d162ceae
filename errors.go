package taskpool

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrPoolStarted is returned by Start when the pool is already running.
	ErrPoolStarted = errors.New("taskpool: pool is already running, cannot be started twice")

	// ErrPoolClosed is returned when submitting to (or starting) a pool
	// whose shutdown has been signaled.
	ErrPoolClosed = errors.New("taskpool: pool closed")

	// ErrPoolStopped resolves tasks that were still queued when the pool
	// was stopped without draining.
	ErrPoolStopped = errors.New("taskpool: pool stopped before task ran")

	// ErrTaskRunning is returned by Task.Run when another Run of the same
	// task is in flight.
	ErrTaskRunning = errors.New("taskpool: task is already running")

	// ErrTaskResolved is returned when a task's result has already been set.
	ErrTaskResolved = errors.New("taskpool: task result already set")

	// ErrTaskSubmitted is returned when a task is submitted while a previous
	// submission of it is still pending.
	ErrTaskSubmitted = errors.New("taskpool: task already submitted")

	// ErrNilTask is returned when a nil task or a task without an action
	// factory is submitted.
	ErrNilTask = errors.New("taskpool: nil task or action factory")
)

// TaskError is the terminal error of a task that exhausted its retries.
//
// Unwrap exposes the last attempt's error, so errors.Is and errors.As
// see the underlying failure.
type TaskError struct {
	Task     string
	Attempts int
	Err      error

	all error
}

func newTaskError(task string, attempts int, last, all error) *TaskError {
	return &TaskError{Task: task, Attempts: attempts, Err: last, all: all}
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("taskpool: task %s failed after %d attempt(s): %v", e.Task, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// AttemptErrors returns the error of every attempt in order. Attempt
// errors that are themselves multierr aggregates come back flattened.
func (e *TaskError) AttemptErrors() []error {
	return multierr.Errors(e.all)
}

// PanicError wraps a value recovered from a panicking action or worker.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("taskpool: panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WorkerError reports an infrastructure failure that terminated a worker loop.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("taskpool: worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
