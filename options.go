package gateway

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport        Transport
	logger           *zap.Logger
	sequence         Sequence
	resubscribeDelay time.Duration
	dialInitial      time.Duration
	dialMax          time.Duration
}

func clientDefaults() clientOptions {
	return clientOptions{
		logger:           zap.NewNop(),
		resubscribeDelay: DefaultResubscribeDelay,
		dialInitial:      500 * time.Millisecond,
		dialMax:          30 * time.Second,
	}
}

// WithTransport replaces the default WebSocket transport.
func WithTransport(t Transport) Option {
	return func(o *clientOptions) {
		o.transport = t
	}
}

// WithLogger sets the logger for client diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSequence sets the request sequence source. By default every client
// gets its own counter.
func WithSequence(s Sequence) Option {
	return func(o *clientOptions) {
		o.sequence = s
	}
}

// WithResubscribeDelay sets the fixed delay between failed resubscribe
// attempts after a reconnect.
func WithResubscribeDelay(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.resubscribeDelay = d
		}
	}
}

// WithDialBackoff sets the exponential backoff bounds the default
// transport uses while redialing in Recover.
func WithDialBackoff(initial, max time.Duration) Option {
	return func(o *clientOptions) {
		if initial > 0 {
			o.dialInitial = initial
		}
		if max >= initial {
			o.dialMax = max
		}
	}
}
