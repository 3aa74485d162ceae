package taskpool

import (
	"math"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	"github.com/cenkalti/backoff"
)

const defaultJitterMax = 30 * time.Second

// RetryPolicy describes how many times and how often a failed task is retried.
//
// A task makes at most MaxRetries+1 attempts. After the n-th failed attempt
// it sleeps BackoffBase * 2^(n-1) before trying again.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BackoffBase is the sleep after the first failed attempt.
	BackoffBase time.Duration

	// BackoffMax caps a single sleep. Zero means uncapped.
	BackoffMax time.Duration

	// Jitter randomizes the sleeps instead of following the exact
	// doubling schedule.
	Jitter bool
}

func (rp RetryPolicy) normalized() RetryPolicy {
	if rp.MaxRetries < 0 {
		rp.MaxRetries = 0
	}
	if rp.BackoffBase < 0 {
		rp.BackoffBase = 0
	}
	if rp.BackoffMax < 0 {
		rp.BackoffMax = 0
	}
	return rp
}

// delaySchedule yields the sleep before each retry, in order.
type delaySchedule interface {
	Next() time.Duration
}

type scheduleFunc func() time.Duration

func (f scheduleFunc) Next() time.Duration { return f() }

type exactSchedule struct {
	eb *backoff.ExponentialBackOff
}

func (s exactSchedule) Next() time.Duration {
	d := s.eb.NextBackOff()
	if d < 0 {
		return 0
	}
	return d
}

// schedule returns a fresh delay sequence for one Run of a task.
func (rp RetryPolicy) schedule() delaySchedule {
	max := rp.BackoffMax
	if rp.Jitter {
		if max <= 0 {
			max = defaultJitterMax
		}
		bo := boff.New(rp.BackoffBase, max, time.Now().UnixNano())
		return scheduleFunc(bo.Next)
	}
	if max <= 0 {
		max = time.Duration(math.MaxInt64)
	}
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     rp.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return exactSchedule{eb: eb}
}

// Delay returns the exact sleep after the given failed attempt (1-based),
// ignoring Jitter.
func (rp RetryPolicy) Delay(attempt int) time.Duration {
	rp = rp.normalized()
	if attempt < 1 || rp.BackoffBase == 0 {
		return 0
	}
	d := rp.BackoffBase
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = time.Duration(math.MaxInt64)
			break
		}
		d *= 2
	}
	if rp.BackoffMax > 0 && d > rp.BackoffMax {
		d = rp.BackoffMax
	}
	return d
}
