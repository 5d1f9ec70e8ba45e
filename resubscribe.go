package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultResubscribeDelay is the pause between failed resubscribe attempts.
const DefaultResubscribeDelay = 5 * time.Second

type reconnectState int

const (
	stateIdle reconnectState = iota
	stateRetrying
	stateStopped
)

func (s reconnectState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRetrying:
		return "retrying"
	case stateStopped:
		return "stopped"
	}
	return "unknown"
}

// resubscriber restores server-side subscriptions after the transport
// reports a dropped connection: recover the transport, then subscribe every
// live channel in one batch, retrying on a fixed delay until success or stop.
type resubscriber struct {
	delay     time.Duration
	recover   func(ctx context.Context) error
	channels  func() []string
	subscribe func(ctx context.Context, channels []string) error
	onError   ErrorHandler
	onDone    func(channels []string)
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       reconnectState
	gen         uint64 // bumped by every peer-closed event
	timer       *time.Timer
	needRecover bool
	attempts    int
}

func newResubscriber(delay time.Duration, logger *zap.Logger, onError ErrorHandler) *resubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &resubscriber{
		delay:   delay,
		onError: onError,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// peerClosed starts a recovery. A recovery already in progress is
// superseded: its pending retry is cancelled and its outcome ignored.
func (r *resubscriber) peerClosed() {
	r.mu.Lock()
	if r.state == stateStopped {
		r.mu.Unlock()
		return
	}
	r.stopTimerLocked()
	r.gen++
	r.state = stateRetrying
	r.needRecover = true
	r.attempts = 0
	gen := r.gen
	r.mu.Unlock()

	go r.attempt(gen)
}

// stop is terminal. No attempt starts after it returns.
func (r *resubscriber) stop() {
	r.mu.Lock()
	if r.state == stateStopped {
		r.mu.Unlock()
		return
	}
	r.state = stateStopped
	r.stopTimerLocked()
	r.mu.Unlock()

	r.cancel()
}

func (r *resubscriber) currentState() reconnectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *resubscriber) attempt(gen uint64) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.attempts++
	attempt := r.attempts
	needRecover := r.needRecover
	r.mu.Unlock()

	if needRecover {
		if err := r.recover(r.ctx); err != nil {
			r.retry(gen, attempt, ErrRecoverFailure, nil, err)
			return
		}
		r.mu.Lock()
		if r.currentLocked(gen) {
			r.needRecover = false
		}
		r.mu.Unlock()
	}

	channels := r.channels()
	if len(channels) == 0 {
		r.settle(gen, nil)
		return
	}

	r.logger.Debug("resubscribing", zap.Strings("channels", channels), zap.Int("attempt", attempt))
	if err := r.subscribe(r.ctx, channels); err != nil {
		r.retry(gen, attempt, ErrResubscribeFailure, channels, err)
		return
	}
	r.settle(gen, channels)
}

// retry schedules the next attempt of gen after the fixed delay.
func (r *resubscriber) retry(gen uint64, attempt int, kind ErrorKind, channels []string, cause error) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		return
	}
	r.timer = time.AfterFunc(r.delay, func() { r.attempt(gen) })
	r.mu.Unlock()

	r.logger.Warn("resubscribe attempt failed",
		zap.Stringer("kind", kind),
		zap.Int("attempt", attempt),
		zap.Duration("retry_in", r.delay),
		zap.Error(cause))
	r.onError(SDKError{
		Kind:      kind,
		Channels:  channels,
		Cause:     cause,
		Timestamp: time.Now(),
	})
}

func (r *resubscriber) settle(gen uint64, channels []string) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		return
	}
	r.state = stateIdle
	r.stopTimerLocked()
	onDone := r.onDone
	r.mu.Unlock()

	if len(channels) > 0 && onDone != nil {
		onDone(channels)
	}
}

func (r *resubscriber) currentLocked(gen uint64) bool {
	return r.state == stateRetrying && r.gen == gen
}

func (r *resubscriber) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
