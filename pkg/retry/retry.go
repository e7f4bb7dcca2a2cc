// Package retry wraps transfer attempts in a bounded retry loop with a
// linearly growing backoff: the wait after the k-th failed attempt is
// k times the base delay. There's no jitter, and every task gets its own
// independent attempt budget.
package retry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Driver retries a failing task.
type Driver struct {
	// MaxAttempts is the total attempt budget. Values below one are treated
	// as one.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt. The k-th failed
	// attempt waits k times this.
	BaseDelay time.Duration

	// Clock is the sleep source. It's injected so that backoff is testable
	// without real delays. nil means the real clock.
	Clock clockwork.Clock

	// OnFailure, if set, is invoked after every failed attempt, including the
	// last one. The attempt number is 1-indexed.
	OnFailure func(attempt int, err error)
}

// Run attempts `fn` until it succeeds or the attempt budget is exhausted. It
// returns nil on success, and the last error otherwise. There's no wait after
// the final failed attempt.
func (d Driver) Run(fn func() error) error {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	maxAttempts := d.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if d.OnFailure != nil {
			d.OnFailure(attempt, err)
		}

		if attempt < maxAttempts {
			clock.Sleep(time.Duration(attempt) * d.BaseDelay)
		}
	}
	return err
}
