package gateway

import (
	"context"
	"time"
)

// backoff paces transport redials: the delay doubles per failed dial up to
// max. Each Recover starts a fresh one.
type backoff struct {
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if max < initial {
		max = initial
	}
	return &backoff{
		max:     max,
		current: initial,
	}
}

func (b *backoff) next() time.Duration {
	d := min(b.current, b.max)
	b.current = min(b.current*2, b.max)
	return d
}

// wait sleeps for the next delay, or returns ctx's error if it ends first.
func (b *backoff) wait(ctx context.Context) error {
	t := time.NewTimer(b.next())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
