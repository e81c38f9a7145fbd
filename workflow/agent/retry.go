package agent

import (
	"context"
	"math/rand"
	"time"
)

// Retry defaults. Two retries on top of the initial attempt keeps worst-case
// latency inside the per-agent deadlines.
const (
	DefaultRetryMax  = 2
	DefaultRetryBase = 200 * time.Millisecond
	DefaultRetryCeil = 2 * time.Second
)

// Retry applies exponential backoff with jitter to transient collaborator
// failures. Only errors classified transient_external are retried; everything
// else returns to the caller on the first attempt.
type Retry struct {
	// Max is the number of retries after the initial attempt.
	Max int

	// Base is the backoff unit. Attempt n waits min(Base*2^n, Ceil) plus a
	// random jitter in [0, Base).
	Base time.Duration

	// Ceil caps the exponential component.
	Ceil time.Duration
}

// Do runs op, retrying transient failures until the budget is spent or ctx
// ends. The final error is op's own unless the wait was interrupted, in which
// case the context error is returned.
func (r Retry) Do(ctx context.Context, op func(context.Context) error) error {
	limit := r.Max
	if limit < 0 {
		limit = 0
	}
	base := r.Base
	if base <= 0 {
		base = DefaultRetryBase
	}
	ceil := r.Ceil
	if ceil < base {
		ceil = DefaultRetryCeil
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil || attempt >= limit || !IsTransient(err) {
			return err
		}

		timer := time.NewTimer(backoffDelay(attempt, base, ceil))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoffDelay computes min(base * 2^attempt, ceil) + jitter(0, base).
// Jitter spreads concurrent retries so agents in the same stage do not
// hammer a recovering service in lockstep.
func backoffDelay(attempt int, base, ceil time.Duration) time.Duration {
	delay := base * (1 << attempt)
	if delay > ceil {
		delay = ceil
	}
	return delay + time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter timing, not security
}
