package taskpool_test

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	tp "github.com/Andrej220/go-utils/taskpool"
)

func newTestPool(t *testing.T, workers int, opts tp.Options) *tp.Pool {
	t.Helper()

	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.ThrottleInterval == 0 {
		opts.ThrottleInterval = 5 * time.Millisecond
	}
	p := tp.NewPool(workers, opts)
	t.Cleanup(p.StopNow)
	return p
}

// value returns a factory whose actions succeed with v.
func value[T any](v T) tp.ActionFactory[T] {
	return func() tp.Action[T] {
		return func(context.Context, tp.Args) (T, error) { return v, nil }
	}
}

// failing returns a factory whose actions always fail with err and counts
// the invocations.
func failing(err error, calls *int32) tp.ActionFactory[int] {
	var mu sync.Mutex
	return func() tp.Action[int] {
		return func(context.Context, tp.Args) (int, error) {
			mu.Lock()
			*calls++
			mu.Unlock()
			return 0, err
		}
	}
}

// recorder collects labels in execution order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.order = append(r.order, s)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recorder) factory(label string) tp.ActionFactory[string] {
	return func() tp.Action[string] {
		return func(context.Context, tp.Args) (string, error) {
			r.add(label)
			return label, nil
		}
	}
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not satisfied before timeout")
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
