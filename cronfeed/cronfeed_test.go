package cronfeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tp "github.com/Andrej220/go-utils/taskpool"
)

func counting(n *atomic.Int32) Builder {
	return func() tp.Job {
		return tp.NewTask(0, func() tp.Action[int] {
			return func(context.Context, tp.Args) (int, error) {
				return int(n.Add(1)), nil
			}
		})
	}
}

func newPool(t *testing.T) *tp.Pool {
	t.Helper()
	p := tp.NewPool(1, tp.Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, p.Start())
	t.Cleanup(p.StopNow)
	return p
}

func TestFeedRunNow(t *testing.T) {
	p := newPool(t)
	f := New(p)

	var runs atomic.Int32
	id, err := f.Add("@hourly", counting(&runs))
	require.NoError(t, err)

	require.NoError(t, f.RunNow(id))
	require.NoError(t, f.RunNow(id))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))

	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int64(2), f.Submitted())

	f.Remove(id)
	assert.ErrorIs(t, f.RunNow(id), ErrUnknownEntry)
}

func TestFeedSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a one second cron tick")
	}
	p := newPool(t)
	f := New(p, cron.WithSeconds())

	var runs atomic.Int32
	_, err := f.Add("* * * * * *", counting(&runs))
	require.NoError(t, err)

	f.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Stop(ctx))
}

func TestFeedRejectedAfterPoolStop(t *testing.T) {
	p := newPool(t)
	f := New(p)

	var got error
	f.OnError = func(err error) { got = err }

	var runs atomic.Int32
	id, err := f.Add("@daily", counting(&runs))
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, f.RunNow(id))

	assert.True(t, errors.Is(got, tp.ErrPoolClosed))
	assert.Equal(t, int64(1), f.Rejected())
	assert.Zero(t, runs.Load())
}

func TestFeedAddErrors(t *testing.T) {
	f := New(newPool(t))

	_, err := f.Add("@daily", nil)
	assert.Error(t, err)

	_, err = f.Add("not a spec", func() tp.Job { return nil })
	assert.Error(t, err)
}
