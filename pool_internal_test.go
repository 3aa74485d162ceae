package taskpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fenceUp(p *Pool) bool {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	return p.q.fences > 0
}

func TestPoolDrainHoldsNewSubmissions(t *testing.T) {
	p := NewPool(1, Options{PollInterval: 10 * time.Millisecond})
	defer p.StopNow()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(label string, hold <-chan struct{}) ActionFactory[string] {
		return func() Action[string] {
			return func(context.Context, Args) (string, error) {
				if hold != nil {
					<-hold
				}
				mu.Lock()
				order = append(order, label)
				mu.Unlock()
				return label, nil
			}
		}
	}

	release := make(chan struct{})
	if err := p.Submit(NewTask(5, record("backlog-slow", release))); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(NewTask(6, record("backlog", nil))); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	drained := make(chan error, 1)
	go func() { drained <- p.Drain(context.Background()) }()
	waitFor(t, func() bool { return fenceUp(p) })

	late := NewTask(0, record("late", nil))
	if err := p.Submit(late); err != nil {
		t.Fatal(err)
	}
	close(release)

	select {
	case err := <-drained:
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := late.Await(ctx); err != nil {
		t.Fatalf("late task: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"backlog-slow", "backlog", "late"}
	if len(order) != len(want) {
		t.Fatalf("order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
	if !p.Stats().Started || p.Stats().Closed {
		t.Fatal("Drain must leave the pool running")
	}
}

func TestPoolDrainIdle(t *testing.T) {
	p := NewPool(2, Options{})
	defer p.StopNow()
	_ = p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain on idle pool: %v", err)
	}
}

func TestPoolShutdownReleasesDrainFence(t *testing.T) {
	p := NewPool(1, Options{PollInterval: 10 * time.Millisecond})

	release := make(chan struct{})
	first := NewTask(0, func() Action[int] {
		return func(context.Context, Args) (int, error) {
			<-release
			return 1, nil
		}
	})
	_ = p.Submit(first)
	_ = p.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Drain(ctx) }()
	waitFor(t, func() bool { return fenceUp(p) })

	parked := NewTask(0, constant(2, nil))
	_ = p.Submit(parked)

	shut := make(chan error, 1)
	go func() { shut <- p.Shutdown(context.Background()) }()
	close(release)

	select {
	case err := <-shut:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown blocked on a drain fence")
	}
	if v, err, ok := parked.Result(); !ok || err != nil || v != 2 {
		t.Fatalf("parked task = %d, %v, %v; want it run by graceful shutdown", v, err, ok)
	}
}

func TestPoolReportInternalError(t *testing.T) {
	boom := errors.New("worker loop failed")

	var got []error
	hooked := NewPool(0, Options{OnInternalError: func(err error) { got = append(got, err) }})
	defer hooked.StopNow()
	hooked.reportInternalError(boom)
	if len(got) != 1 || got[0] != boom {
		t.Fatalf("hook received %v; want [%v]", got, boom)
	}

	// without a hook the error goes to the pool logger
	plain := NewPool(0, Options{Name: "plain"})
	defer plain.StopNow()
	plain.reportInternalError(boom)
}
