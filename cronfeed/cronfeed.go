// Package cronfeed submits periodic tasks to a pool on cron schedules.
package cronfeed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/robfig/cron/v3"

	tp "github.com/Andrej220/go-utils/taskpool"
)

// ErrUnknownEntry is returned by RunNow for an id that is not scheduled.
var ErrUnknownEntry = errors.New("cronfeed: unknown entry")

// Builder returns a fresh job for every tick. Tasks are single-shot, so a
// builder must never return the same task twice.
type Builder func() tp.Job

// Feed wraps a cron scheduler whose entries submit jobs to a pool.
type Feed struct {
	pool *tp.Pool
	cron *cron.Cron

	// OnError receives submission failures, for example ErrPoolClosed
	// after the pool was stopped. Defaults to logging.
	OnError func(error)

	// Context is the source of the feed's logger.
	Context context.Context

	submitted atomic.Int64
	rejected  atomic.Int64
}

// New creates a stopped feed for p. opts are passed to cron.New.
func New(p *tp.Pool, opts ...cron.Option) *Feed {
	return &Feed{
		pool:    p,
		cron:    cron.New(opts...),
		Context: context.Background(),
	}
}

// Add schedules build on spec. The spec syntax is the one accepted by the
// cron options given to New, descriptors like "@every 1m" included.
func (f *Feed) Add(spec string, build Builder) (cron.EntryID, error) {
	if build == nil {
		return 0, fmt.Errorf("cronfeed: nil builder for %q", spec)
	}
	return f.cron.AddFunc(spec, func() { f.submit(build) })
}

// Remove unschedules an entry.
func (f *Feed) Remove(id cron.EntryID) { f.cron.Remove(id) }

// RunNow submits the job of an entry immediately, outside its schedule.
func (f *Feed) RunNow(id cron.EntryID) error {
	e := f.cron.Entry(id)
	if !e.Valid() {
		return ErrUnknownEntry
	}
	e.Job.Run()
	return nil
}

// Start runs the scheduler in its own goroutine.
func (f *Feed) Start() { f.cron.Start() }

// Stop halts the scheduler and waits for running submissions to return,
// or for ctx to end.
func (f *Feed) Stop(ctx context.Context) error {
	done := f.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) Submitted() int64 { return f.submitted.Load() }
func (f *Feed) Rejected() int64  { return f.rejected.Load() }

func (f *Feed) submit(build Builder) {
	j := build()
	if err := f.pool.Submit(j); err != nil {
		f.rejected.Add(1)
		f.report(err)
		return
	}
	f.submitted.Add(1)
}

func (f *Feed) report(err error) {
	if f.OnError != nil {
		f.OnError(err)
		return
	}
	lg.FromContext(f.Context).Warn("Scheduled task rejected", lg.Any("error", err))
}
