package gateway

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OnPush implements TransportHooks. It returns once every observer of the
// push's channel has returned or panicked. Nothing it does propagates back
// into the transport.
func (c *Client) OnPush(raw []byte) {
	push, err := parsePush(raw)
	if err != nil {
		c.onError(SDKError{
			Kind:      ErrParseFailure,
			Raw:       raw,
			Cause:     err,
			Timestamp: time.Now(),
		})
		return
	}
	c.dispatch(push)
}

func (c *Client) dispatch(p *Push) {
	entries := c.registry.observers(p.Channel)
	if len(entries) == 0 {
		c.logger.Warn("push for channel without observers", zap.String("channel", p.Channel))
		return
	}

	// Every goroutine returns nil: Wait is a join-all barrier, not a
	// first-error cancel.
	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			c.invoke(e, p)
			return nil
		})
	}
	_ = g.Wait()
}

// invoke runs one callback on a private copy of the push.
func (c *Client) invoke(e observerEntry, p *Push) {
	cp := *p
	cp.Headers = p.Headers.Clone()

	defer func() {
		if r := recover(); r != nil {
			c.onError(SDKError{
				Kind:      ErrCallbackPanic,
				Channel:   p.Channel,
				Observer:  e.observer,
				Cause:     fmt.Errorf("callback panic: %v", r),
				Timestamp: time.Now(),
			})
		}
	}()

	if err := e.fn(&cp); err != nil {
		c.onError(SDKError{
			Kind:      ErrCallbackFailure,
			Channel:   p.Channel,
			Observer:  e.observer,
			Cause:     err,
			Timestamp: time.Now(),
		})
	}
}
