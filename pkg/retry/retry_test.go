package retry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

var errAlways = errors.New("task failed")

func TestSucceedsFirstTry(t *testing.T) {
	var failures []int
	d := Driver{
		MaxAttempts: 3,
		BaseDelay:   time.Hour,
		OnFailure:   func(attempt int, _ error) { failures = append(failures, attempt) },
	}

	attempts := 0
	err := d.Run(func() error {
		attempts++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, failures)
}

func TestRetryBound(t *testing.T) {
	var failures []int
	d := Driver{
		MaxAttempts: 3,
		OnFailure:   func(attempt int, _ error) { failures = append(failures, attempt) },
	}

	attempts := 0
	err := d.Run(func() error {
		attempts++
		return errAlways
	})
	assert.Equal(t, errAlways, err)
	assert.Equal(t, 3, attempts, "a task that always fails is attempted exactly MaxAttempts times")
	assert.Equal(t, []int{1, 2, 3}, failures)
}

func TestEventualSuccess(t *testing.T) {
	var failures []int
	d := Driver{
		MaxAttempts: 3,
		OnFailure:   func(attempt int, _ error) { failures = append(failures, attempt) },
	}

	attempts := 0
	err := d.Run(func() error {
		attempts++
		if attempts < 3 {
			return errAlways
		}
		return nil
	})
	assert.NoError(t, err, "a task that succeeds within the budget is an overall success")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, failures)
}

func TestZeroMaxAttempts(t *testing.T) {
	attempts := 0
	err := Driver{}.Run(func() error {
		attempts++
		return errAlways
	})
	assert.Equal(t, errAlways, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoffTiming(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := Driver{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
		Clock:       clock,
	}

	var attempts int32
	done := make(chan error)
	go func() {
		done <- d.Run(func() error {
			atomic.AddInt32(&attempts, 1)
			return errAlways
		})
	}()

	// The first failed attempt waits 1 x 30s.
	clock.BlockUntil(1)
	clock.Advance(29 * time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	clock.Advance(time.Second)

	// The second failed attempt waits 2 x 30s.
	clock.BlockUntil(1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	clock.Advance(59 * time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	clock.Advance(time.Second)

	// The third failure is final: no wait, just the error.
	assert.Equal(t, errAlways, <-done)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}
