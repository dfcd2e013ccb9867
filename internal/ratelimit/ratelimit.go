package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrOverlappingRanges is returned when a coarser pacing range starts
// before a finer one ends.
var ErrOverlappingRanges = errors.New("overlapping pacing ranges")

// Range is a closed interval a delay is drawn from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("negative delay range %s-%s", r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("min delay %s is greater than max delay %s", r.Min, r.Max)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Min, r.Max)
}

// Ranges holds the four pacing granularities.
type Ranges struct {
	Keystroke Range
	Action    Range
	Item      Range
	Batch     Range
}

func DefaultRanges() Ranges {
	return Ranges{
		Keystroke: Range{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond},
		Action:    Range{Min: 3 * time.Second, Max: 7 * time.Second},
		Item:      Range{Min: 10 * time.Second, Max: 20 * time.Second},
		Batch:     Range{Min: 30 * time.Second, Max: 60 * time.Second},
	}
}

// Validate checks each range from finest to coarsest and rejects a range
// that starts below the end of the finer one before it.
func (r Ranges) Validate() error {
	ordered := []struct {
		name string
		rng  Range
	}{
		{"keystroke", r.Keystroke},
		{"action", r.Action},
		{"item", r.Item},
		{"batch", r.Batch},
	}
	for i, g := range ordered {
		if err := g.rng.Validate(); err != nil {
			return fmt.Errorf("%s pacing: %w", g.name, err)
		}
		if i == 0 {
			continue
		}
		prev := ordered[i-1]
		if g.rng.Min < prev.rng.Max {
			return fmt.Errorf("%s pacing: %w: %s overlaps %s pacing %s", g.name, ErrOverlappingRanges, g.rng, prev.name, prev.rng)
		}
	}
	return nil
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware SleepFunc used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer draws independent uniform delays and sleeps for them, keeping the
// request cadence irregular.
type Pacer struct {
	ranges Ranges
	sleep  SleepFunc
	mu     sync.Mutex
	rnd    *rand.Rand
}

func NewPacer(ranges Ranges) *Pacer {
	return &Pacer{
		ranges: ranges,
		sleep:  Sleep,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSleep replaces the sleep function. Tests use it to record delays
// instead of waiting.
func (p *Pacer) WithSleep(fn SleepFunc) *Pacer {
	p.sleep = fn
	return p
}

func (p *Pacer) Ranges() Ranges {
	return p.ranges
}

// Delay sleeps for a duration drawn uniformly from r and returns it.
func (p *Pacer) Delay(ctx context.Context, r Range) (time.Duration, error) {
	d := p.calculateDelay(r)
	if err := p.sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

func (p *Pacer) Keystroke(ctx context.Context) (time.Duration, error) {
	return p.Delay(ctx, p.ranges.Keystroke)
}

func (p *Pacer) Action(ctx context.Context) (time.Duration, error) {
	return p.Delay(ctx, p.ranges.Action)
}

func (p *Pacer) Item(ctx context.Context) (time.Duration, error) {
	return p.Delay(ctx, p.ranges.Item)
}

func (p *Pacer) Batch(ctx context.Context) (time.Duration, error) {
	return p.Delay(ctx, p.ranges.Batch)
}

func (p *Pacer) calculateDelay(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delta := r.Max - r.Min
	return r.Min + time.Duration(p.rnd.Int63n(int64(delta)+1))
}
