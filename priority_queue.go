package taskpool

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

const initialQueueCap = 1024

var (
	errPollTimeout = errors.New("taskpool: poll timeout")
	errQueueClosed = errors.New("taskpool: queue stopped")
	errInterrupted = errors.New("taskpool: wait interrupted")
)

// taskQueue is an unbounded priority queue shared by all workers of a pool.
//
// Jobs leave in ascending priority, FIFO among equal priorities. Every
// popped job must be acknowledged with taskDone; join waits until all
// pushed jobs have been acknowledged.
//
// While a drain fence is up, pushed jobs are parked in held and only
// enter the heap once the fenced backlog is fully processed.
type taskQueue struct {
	mu sync.Mutex

	h    entryHeap
	held []*entry
	seq  uint64

	// unfinished counts jobs in the heap plus jobs popped but not yet
	// acknowledged. Parked jobs are not counted.
	unfinished int
	inflight   int

	// wake is closed on push to release waiting consumers.
	wake chan struct{}
	// idle is closed when unfinished reaches zero.
	idle chan struct{}

	fences    int
	fenceDone chan struct{}
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{h: make(entryHeap, 0, initialQueueCap)}
	heap.Init(&q.h)
	return q
}

func (q *taskQueue) push(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	e := &entry{job: job, prio: job.Priority(), seq: q.seq}
	if q.fences > 0 {
		q.held = append(q.held, e)
		return
	}
	heap.Push(&q.h, e)
	q.unfinished++
	q.broadcastLocked()
}

// popBatch removes up to n entries. When the queue is empty it waits until
// a push, until stop is closed (errQueueClosed), until interrupt is closed
// (errInterrupted) or until timeout elapses (errPollTimeout).
func (q *taskQueue) popBatch(stop, interrupt <-chan struct{}, n int, timeout time.Duration) ([]*entry, error) {
	if n < 1 {
		n = 1
	}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		q.mu.Lock()
		if q.h.Len() > 0 {
			out := make([]*entry, 0, min(n, q.h.Len()))
			for len(out) < n && q.h.Len() > 0 {
				out = append(out, heap.Pop(&q.h).(*entry))
			}
			q.inflight += len(out)
			q.mu.Unlock()
			return out, nil
		}
		if q.wake == nil {
			q.wake = make(chan struct{})
		}
		wake := q.wake
		q.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-wake:
		case <-stop:
			return nil, errQueueClosed
		case <-interrupt:
			return nil, errInterrupted
		case <-timer.C:
			return nil, errPollTimeout
		}
	}
}

// requeue puts popped, unacknowledged entries back with their original
// sequence numbers, ahead of later arrivals of the same priority. They
// stay part of the backlog, so drain fences do not park them.
func (q *taskQueue) requeue(entries []*entry) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range entries {
		heap.Push(&q.h, e)
	}
	q.inflight -= len(entries)
	if q.inflight < 0 {
		q.inflight = 0
	}
	q.broadcastLocked()
}

// taskDone acknowledges one popped job.
func (q *taskQueue) taskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight > 0 {
		q.inflight--
	}
	if q.unfinished > 0 {
		q.unfinished--
	}
	if q.unfinished == 0 {
		q.idleLocked()
	}
}

// join blocks until every pushed job has been acknowledged.
func (q *taskQueue) join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	if q.idle == nil {
		q.idle = make(chan struct{})
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fence raises a drain fence and waits for the backlog present at the
// call to be processed. Jobs pushed meanwhile are parked.
func (q *taskQueue) fence(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	q.fences++
	if q.fenceDone == nil {
		q.fenceDone = make(chan struct{})
	}
	done := q.fenceDone
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		if q.fenceDone == done {
			q.fences--
			if q.fences == 0 {
				q.releaseLocked()
			}
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}

// openFences drops every drain fence and releases parked jobs.
func (q *taskQueue) openFences() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked()
}

// abortAll empties the queue, parked jobs included, and aborts every
// removed job with err. It returns the number of aborted jobs.
func (q *taskQueue) abortAll(err error) int {
	q.mu.Lock()
	victims := make([]Job, 0, q.h.Len()+len(q.held))
	for _, e := range q.held {
		victims = append(victims, e.job)
	}
	queued := q.h.Len()
	for q.h.Len() > 0 {
		victims = append(victims, heap.Pop(&q.h).(*entry).job)
	}
	q.held = nil
	q.unfinished -= queued
	if q.unfinished == 0 {
		q.idleLocked()
	}
	q.mu.Unlock()

	for _, j := range victims {
		j.abort(err)
	}
	return len(victims)
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len() + len(q.held)
}

func (q *taskQueue) empty() bool { return q.len() == 0 }

func (q *taskQueue) inFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight
}

func (q *taskQueue) broadcastLocked() {
	if q.wake != nil {
		close(q.wake)
		q.wake = nil
	}
}

func (q *taskQueue) idleLocked() {
	if q.idle != nil {
		close(q.idle)
		q.idle = nil
	}
	if q.fences > 0 {
		q.releaseLocked()
	}
}

func (q *taskQueue) releaseLocked() {
	if q.fenceDone != nil {
		close(q.fenceDone)
		q.fenceDone = nil
	}
	q.fences = 0
	if len(q.held) == 0 {
		return
	}
	for _, e := range q.held {
		heap.Push(&q.h, e)
	}
	q.unfinished += len(q.held)
	q.held = nil
	q.broadcastLocked()
}
