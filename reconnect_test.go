package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_ExponentialWithCap(t *testing.T) {
	b := newBackoff(1*time.Second, 30*time.Second)

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if d := b.next(); d != w*time.Second {
			t.Errorf("backoff #%d = %v, want %v", i+1, d, w*time.Second)
		}
	}
}

func TestBackoff_MaxBelowInitial(t *testing.T) {
	b := newBackoff(5*time.Second, time.Second)
	if d := b.next(); d != 5*time.Second {
		t.Errorf("backoff = %v, want 5s (max raised to initial)", d)
	}
}

func TestBackoff_WaitCancelled(t *testing.T) {
	b := newBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("wait() error = %v, want context.Canceled", err)
	}
}

func TestBackoff_Wait(t *testing.T) {
	b := newBackoff(time.Millisecond, time.Millisecond)
	if err := b.wait(context.Background()); err != nil {
		t.Errorf("wait() error: %v", err)
	}
}
