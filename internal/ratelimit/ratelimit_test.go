package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleep(got *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*got = append(*got, d)
		return ctx.Err()
	}
}

func TestPacer_DelayStaysInRange(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(DefaultRanges()).WithSleep(recordingSleep(&slept))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		d, err := p.Item(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 20*time.Second)
	}
	assert.Len(t, slept, 200)
}

func TestPacer_GranularitiesUseConfiguredRanges(t *testing.T) {
	ranges := Ranges{
		Keystroke: Range{Min: time.Millisecond, Max: time.Millisecond},
		Action:    Range{Min: 2 * time.Second, Max: 2 * time.Second},
		Item:      Range{Min: 3 * time.Second, Max: 3 * time.Second},
		Batch:     Range{Min: 4 * time.Second, Max: 4 * time.Second},
	}
	var slept []time.Duration
	p := NewPacer(ranges).WithSleep(recordingSleep(&slept))
	ctx := context.Background()

	_, _ = p.Keystroke(ctx)
	_, _ = p.Action(ctx)
	_, _ = p.Item(ctx)
	_, _ = p.Batch(ctx)

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Second, 3 * time.Second, 4 * time.Second}, slept)
}

func TestPacer_DelayCancelled(t *testing.T) {
	p := NewPacer(DefaultRanges())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Batch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRanges_Validate(t *testing.T) {
	assert.NoError(t, DefaultRanges().Validate())

	bad := DefaultRanges()
	bad.Batch = Range{Min: time.Minute, Max: time.Second}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch pacing")
}

func TestRanges_ValidateReportsFinestInvalidRangeFirst(t *testing.T) {
	bad := DefaultRanges()
	bad.Action = Range{Min: 5 * time.Second, Max: time.Second}
	bad.Item = Range{Min: 30 * time.Second, Max: 10 * time.Second}
	bad.Batch = Range{Min: time.Minute, Max: time.Second}

	for i := 0; i < 50; i++ {
		err := bad.Validate()
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "action pacing"), err.Error())
	}
}

func TestRanges_ValidateRejectsOverlap(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Ranges)
		wantErr string
	}{
		{
			name:    "item starts inside action",
			mutate:  func(r *Ranges) { r.Item = Range{Min: 5 * time.Second, Max: 20 * time.Second} },
			wantErr: "item pacing",
		},
		{
			name:    "batch starts inside item",
			mutate:  func(r *Ranges) { r.Batch = Range{Min: 15 * time.Second, Max: time.Minute} },
			wantErr: "batch pacing",
		},
		{
			name:    "action starts inside keystroke",
			mutate:  func(r *Ranges) { r.Action = Range{Min: 100 * time.Millisecond, Max: time.Second} },
			wantErr: "action pacing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := DefaultRanges()
			tt.mutate(&ranges)

			err := ranges.Validate()
			require.ErrorIs(t, err, ErrOverlappingRanges)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRanges_ValidateAllowsTouchingRanges(t *testing.T) {
	ranges := Ranges{
		Keystroke: Range{Min: time.Millisecond, Max: time.Second},
		Action:    Range{Min: time.Second, Max: 2 * time.Second},
		Item:      Range{Min: 2 * time.Second, Max: 2 * time.Second},
		Batch:     Range{Min: 2 * time.Second, Max: 3 * time.Second},
	}
	assert.NoError(t, ranges.Validate())
}

func TestSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
