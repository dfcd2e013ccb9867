package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, Linear(5*time.Second, 3))
	assert.Empty(t, Linear(time.Second, 0))
	assert.Empty(t, Linear(time.Second, -1))
}

func TestPolicy_ExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	var waits []time.Duration
	p := NewPolicy(5*time.Second, 3)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	boom := errors.New("timeout waiting for #productTitle")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, waits)
}

func TestPolicy_StopsOnSuccess(t *testing.T) {
	var waits []time.Duration
	p := NewPolicy(5*time.Second, 3)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	var retried []int
	p.OnRetry = func(attempt int, wait time.Duration, err error) {
		retried = append(retried, attempt)
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{5 * time.Second}, waits)
	assert.Equal(t, []int{2}, retried)
}

func TestPolicy_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(time.Hour, 3)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
