package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var errNilAction = errors.New("taskpool: action factory returned nil")

// Args are handed unchanged to every attempt of a task.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Action is a single attempt of a task's work.
type Action[T any] func(ctx context.Context, args Args) (T, error)

// ActionFactory builds a fresh Action for every attempt, so state held by
// an action is never reused across retries.
type ActionFactory[T any] func() Action[T]

// Job is what the pool queues and workers execute. It is implemented by
// *Task[T] for any T.
type Job interface {
	Priority() int
	ID() string
	Name() string

	execute(ctx context.Context, onRetry func()) error
	abort(err error)
	claim() error
}

type taskSettings struct {
	args  Args
	retry RetryPolicy
	ctx   context.Context
	name  string
}

// TaskOption configures a Task at construction.
type TaskOption func(*taskSettings)

// WithArgs sets the positional arguments passed to every attempt.
func WithArgs(positional ...any) TaskOption {
	return func(s *taskSettings) { s.args.Positional = positional }
}

// WithKeyword sets the keyword arguments passed to every attempt.
func WithKeyword(kw map[string]any) TaskOption {
	return func(s *taskSettings) { s.args.Keyword = kw }
}

// WithRetry replaces the whole retry policy.
func WithRetry(rp RetryPolicy) TaskOption {
	return func(s *taskSettings) { s.retry = rp }
}

func WithMaxRetries(n int) TaskOption {
	return func(s *taskSettings) { s.retry.MaxRetries = n }
}

func WithBackoff(base time.Duration) TaskOption {
	return func(s *taskSettings) { s.retry.BackoffBase = base }
}

// WithContext sets the task's own context. Its logger is used for the
// task's log lines and its cancellation reaches every attempt.
func WithContext(ctx context.Context) TaskOption {
	return func(s *taskSettings) { s.ctx = ctx }
}

// WithName sets a human readable name used in logs and errors.
func WithName(name string) TaskOption {
	return func(s *taskSettings) { s.name = name }
}

// Task is a prioritized, retryable unit of work with a single-assignment
// result. Lower priority values run first.
//
// A Task may be awaited by any number of observers; all of them see the
// same outcome.
type Task[T any] struct {
	id       string
	name     string
	priority int
	factory  ActionFactory[T]
	args     Args
	retry    RetryPolicy
	ctx      context.Context

	result    *resultSlot[T]
	running   atomic.Bool
	submitted atomic.Bool
	attempts  atomic.Int32
}

// NewTask creates a pending task.
func NewTask[T any](priority int, factory ActionFactory[T], opts ...TaskOption) *Task[T] {
	s := taskSettings{ctx: context.Background()}
	for _, o := range opts {
		o(&s)
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	return &Task[T]{
		id:       uuid.NewString(),
		name:     s.name,
		priority: priority,
		factory:  factory,
		args:     s.args,
		retry:    s.retry.normalized(),
		ctx:      s.ctx,
		result:   newResultSlot[T](),
	}
}

func (t *Task[T]) Priority() int            { return t.priority }
func (t *Task[T]) ID() string               { return t.id }
func (t *Task[T]) Retry() RetryPolicy       { return t.retry }
func (t *Task[T]) Attempts() int            { return int(t.attempts.Load()) }
func (t *Task[T]) State() State             { return t.result.current() }
func (t *Task[T]) Done() <-chan struct{}    { return t.result.done }
func (t *Task[T]) Result() (T, error, bool) { return t.result.peek() }

// Name returns the task name, or its ID when no name was given.
func (t *Task[T]) Name() string {
	if t.name != "" {
		return t.name
	}
	return t.id
}

// Less orders tasks by priority only.
func (t *Task[T]) Less(other Job) bool {
	return t.priority < other.Priority()
}

// Await blocks until the task resolves and returns its value or error.
// If ctx ends first, ctx.Err() is returned and the task is unaffected.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	return t.result.wait(ctx)
}

// Run executes the task with its retry policy and resolves the result.
// It returns ErrTaskRunning if another Run is in flight and
// ErrTaskResolved if the task already has a result.
func (t *Task[T]) Run(ctx context.Context) (T, error) {
	return t.run(ctx, nil)
}

func (t *Task[T]) execute(ctx context.Context, onRetry func()) error {
	_, err := t.run(ctx, onRetry)
	return err
}

func (t *Task[T]) run(ctx context.Context, onRetry func()) (T, error) {
	var zero T
	if !t.running.CompareAndSwap(false, true) {
		return zero, ErrTaskRunning
	}
	defer t.running.Store(false)

	if t.result.current() != StatePending {
		return zero, ErrTaskResolved
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := joinContexts(ctx, t.ctx)
	defer cancel()

	logger := lg.FromContext(t.ctx).With(lg.String("task", t.Name()), lg.Int("priority", t.priority))
	sched := t.retry.schedule()

	var all error
	for attempt := 0; ; {
		v, err := t.attempt(ctx)
		t.attempts.Add(1)
		if err == nil {
			if rerr := t.result.complete(v); rerr != nil {
				return zero, rerr
			}
			return v, nil
		}

		all = multierr.Append(all, err)
		attempt++
		if attempt > t.retry.MaxRetries {
			terr := newTaskError(t.Name(), attempt, err, all)
			_ = t.result.fail(terr)
			return zero, terr
		}

		delay := sched.Next()
		logger.Warn("task attempt failed; backing off",
			lg.Int("attempt", attempt),
			lg.String("sleep", delay.String()),
			lg.Any("error", err),
		)
		if onRetry != nil {
			onRetry()
		}
		if cerr := sleepCtx(ctx, delay); cerr != nil {
			last := fmt.Errorf("%w (retry aborted: %w)", err, cerr)
			terr := newTaskError(t.Name(), attempt, last, all)
			_ = t.result.fail(terr)
			logger.Info("task retry canceled", lg.Any("reason", cerr))
			return zero, terr
		}
	}
}

func (t *Task[T]) attempt(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, &PanicError{Value: r}
		}
	}()
	act := t.factory()
	if act == nil {
		return v, errNilAction
	}
	return act(ctx, t.args)
}

func (t *Task[T]) abort(err error) {
	_ = t.result.fail(err)
}

func (t *Task[T]) claim() error {
	if t == nil || t.factory == nil {
		return ErrNilTask
	}
	if t.result.current() != StatePending {
		return ErrTaskResolved
	}
	if !t.submitted.CompareAndSwap(false, true) {
		return ErrTaskSubmitted
	}
	return nil
}

// sleepCtx sleeps for d unless ctx ends first, in which case it returns
// the context's cause.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// joinContexts returns a context derived from parent that is also
// canceled when other is.
func joinContexts(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(other, func() { cancel(context.Cause(other)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
