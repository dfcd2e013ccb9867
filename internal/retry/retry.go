package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/catalog-enricher/internal/ratelimit"
)

var ErrExhausted = errors.New("retries exhausted")

// Linear returns the wait before each retry: base, 2*base, ... retries*base.
func Linear(base time.Duration, retries int) []time.Duration {
	if retries < 0 {
		retries = 0
	}
	delays := make([]time.Duration, retries)
	for i := range delays {
		delays[i] = time.Duration(i+1) * base
	}
	return delays
}

// Policy runs an operation once plus one retry per entry in Delays.
type Policy struct {
	Delays  []time.Duration
	Sleep   ratelimit.SleepFunc
	OnRetry func(attempt int, wait time.Duration, err error)
}

func NewPolicy(base time.Duration, retries int) Policy {
	return Policy{
		Delays: Linear(base, retries),
		Sleep:  ratelimit.Sleep,
	}
}

// Attempts is the total number of calls Do makes when every call fails.
func (p Policy) Attempts() int {
	return len(p.Delays) + 1
}

// Do calls fn until it succeeds, the schedule runs out or ctx is done.
// attempt starts at 1.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = ratelimit.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		if attempt > 1 {
			wait := p.Delays[attempt-2]
			if p.OnRetry != nil {
				p.OnRetry(attempt, wait, lastErr)
			}
			if err := sleep(ctx, wait); err != nil {
				return fmt.Errorf("retry interrupted: %w", errors.Join(err, lastErr))
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry interrupted: %w", errors.Join(ctx.Err(), lastErr))
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.Attempts(), lastErr)
}
