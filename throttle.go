package taskpool

import (
	"sync"
	"time"
)

// throttleGate holds workers back from dequeuing while a throttle
// predicate is installed and reports false. The predicate is evaluated by
// one worker at a time and is cleared once it reports true.
type throttleGate struct {
	mu       sync.Mutex
	cond     func() bool
	changed  chan struct{}
	interval time.Duration
}

func newThrottleGate(interval time.Duration) *throttleGate {
	return &throttleGate{interval: interval}
}

func (g *throttleGate) set(cond func() bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cond = cond
	g.broadcastLocked()
}

func (g *throttleGate) lift() { g.set(nil) }

func (g *throttleGate) active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cond != nil
}

// check evaluates the predicate. A panicking predicate is dropped and the
// panic is returned as an error. The returned channel is closed on the
// next change of the predicate.
func (g *throttleGate) check() (open bool, changed <-chan struct{}, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cond != nil {
		ok, perr := g.evalLocked()
		if perr == nil && !ok {
			return false, g.changedLocked(), nil
		}
		g.cond = nil
		g.broadcastLocked()
		err = perr
	}
	return true, g.changedLocked(), err
}

func (g *throttleGate) evalLocked() (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return g.cond(), nil
}

// wait blocks until the gate is open or stop is closed. It returns a
// channel that is closed when a throttle is installed afterwards, so a
// worker blocked on the queue can come back to the gate.
func (g *throttleGate) wait(stop <-chan struct{}) (<-chan struct{}, error) {
	for {
		open, changed, err := g.check()
		if open {
			return changed, err
		}
		timer := time.NewTimer(g.interval)
		select {
		case <-changed:
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return changed, nil
		}
		timer.Stop()
	}
}

func (g *throttleGate) changedLocked() chan struct{} {
	if g.changed == nil {
		g.changed = make(chan struct{})
	}
	return g.changed
}

func (g *throttleGate) broadcastLocked() {
	if g.changed != nil {
		close(g.changed)
		g.changed = nil
	}
}
