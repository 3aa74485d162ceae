package taskpool

import (
	"context"
	"sync"
)

// State is the resolution state of a task's result.
type State int32

const (
	StatePending State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// resultSlot is a single-assignment result: pending until exactly one
// resolve call moves it to completed or failed. Observers block on done,
// which is closed at resolution.
type resultSlot[T any] struct {
	mu    sync.Mutex
	state State
	val   T
	err   error
	done  chan struct{}
}

func newResultSlot[T any]() *resultSlot[T] {
	return &resultSlot[T]{done: make(chan struct{})}
}

func (r *resultSlot[T]) complete(v T) error {
	return r.resolve(StateCompleted, v, nil)
}

func (r *resultSlot[T]) fail(err error) error {
	var zero T
	return r.resolve(StateFailed, zero, err)
}

func (r *resultSlot[T]) resolve(st State, v T, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePending {
		return ErrTaskResolved
	}
	r.state, r.val, r.err = st, v, err
	close(r.done)
	return nil
}

// wait blocks until the slot resolves or ctx is done. A canceled wait
// leaves the slot untouched.
func (r *resultSlot[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	v, err, _ := r.peek()
	return v, err
}

func (r *resultSlot[T]) peek() (T, error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.val, r.err, r.state != StatePending
}

func (r *resultSlot[T]) current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
