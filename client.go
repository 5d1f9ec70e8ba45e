package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Client is the main entry point for interacting with the gateway.
type Client struct {
	cfg       Config
	transport Transport
	registry  *subscriptionRegistry
	ids       *requestIDs
	resub     *resubscriber
	logger    *zap.Logger
	onError   ErrorHandler

	mu            sync.Mutex
	closed        bool
	disconnectFn  func(error)
	resubscribeFn func(channels []string)
}

// NewClient creates a new gateway client and installs it as the transport's
// hooks. The onError handler is called for SDK-level errors that cannot be
// returned to a direct caller (malformed pushes, failing observer callbacks,
// background resubscription failures).
func NewClient(cfg Config, onError ErrorHandler, opts ...Option) (*Client, error) {
	o := clientDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	resolved, err := resolveConfig(cfg, o.transport != nil)
	if err != nil {
		return nil, err
	}

	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	t := o.transport
	if t == nil {
		t = NewWebSocketTransport(WebSocketConfig{
			URL:         resolved.URL,
			APIKey:      resolved.APIKey,
			CallTimeout: resolved.CallTimeout,
			DialInitial: o.dialInitial,
			DialMax:     o.dialMax,
			Logger:      o.logger,
		})
	}
	seq := o.sequence
	if seq == nil {
		seq = NewSequence()
	}

	c := &Client{
		cfg:       resolved,
		transport: t,
		registry:  newSubscriptionRegistry(),
		ids:       newRequestIDs(resolved.ClientID, seq),
		logger:    o.logger,
		onError:   onError,
	}

	r := newResubscriber(o.resubscribeDelay, o.logger, onError)
	r.recover = t.Recover
	r.channels = c.registry.channelNames
	r.subscribe = func(ctx context.Context, channels []string) error {
		return c.call(ctx, APISubscribe, channelsRequest{Cmd: channels}, nil, nil)
	}
	r.onDone = c.resubscribed
	c.resub = r

	t.SetHooks(c)
	return c, nil
}

// Connect dials the gateway if the transport needs an explicit dial.
// Transports without one are ready as soon as NewClient returns.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if conn, ok := c.transport.(connector); ok {
		return conn.Connect(ctx)
	}
	return nil
}

// Close stops background resubscription and closes the transport.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.resub.stop()
	return c.transport.Close()
}

// Subscribe registers fn under observer for channel and asks the gateway to
// deliver the channel's pushes. The observer is registered before the call
// is sent so a push racing the reply is not lost; if the call fails the
// registration is rolled back.
func (c *Client) Subscribe(ctx context.Context, channel string, observer Observer, fn Callback, headers Headers) (*SubscribeResponse, error) {
	if channel == "" {
		return nil, errors.New("channel must not be empty")
	}
	if observer.IsZero() {
		return nil, errors.New("observer must come from NewObserver")
	}
	if fn == nil {
		return nil, errors.New("callback must not be nil")
	}

	if err := c.registry.register(channel, observer, fn); err != nil {
		return nil, err
	}

	var resp SubscribeResponse
	if err := c.call(ctx, APISubscribe, channelsRequest{Cmd: []string{channel}}, &resp, headers); err != nil {
		c.registry.rollback(channel, observer)
		return nil, err
	}
	return &resp, nil
}

// Unsubscribe removes observer from channel. The gateway is only called
// when observer was the channel's last one; otherwise the returned
// response has Local set. The local removal stands even if the call fails.
func (c *Client) Unsubscribe(ctx context.Context, channel string, observer Observer, headers Headers) (*UnsubscribeResponse, error) {
	last, err := c.registry.unregister(channel, observer)
	if err != nil {
		return nil, err
	}
	if !last {
		return &UnsubscribeResponse{Local: true}, nil
	}

	var resp UnsubscribeResponse
	if err := c.call(ctx, APIUnsubscribe, channelsRequest{Cmd: []string{channel}}, &resp, headers); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Publish sends data to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel, data string, headers Headers) (*PublishResponse, error) {
	var resp PublishResponse
	if err := c.call(ctx, APIPublish, publishRequest{Cmd: channel, Data: data}, &resp, headers); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks the gateway round trip.
func (c *Client) Ping(ctx context.Context, headers Headers) (*PingResponse, error) {
	var resp PingResponse
	if err := c.call(ctx, APIPing, struct{}{}, &resp, headers); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Channels returns the channels that currently have at least one observer.
func (c *Client) Channels() []string {
	return c.registry.channelNames()
}

// OnDisconnect registers a callback invoked when the connection drops,
// before recovery starts.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.disconnectFn = fn
	c.mu.Unlock()
}

// OnResubscribe registers a callback invoked after a reconnect once the
// gateway has accepted the batched resubscribe.
func (c *Client) OnResubscribe(fn func(channels []string)) {
	c.mu.Lock()
	c.resubscribeFn = fn
	c.mu.Unlock()
}

// OnPeerClosed implements TransportHooks.
func (c *Client) OnPeerClosed(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn := c.disconnectFn
	c.mu.Unlock()

	c.logger.Warn("gateway connection lost", zap.Error(err))
	if fn != nil {
		fn(err)
	}
	c.resub.peerClosed()
}

func (c *Client) resubscribed(channels []string) {
	c.mu.Lock()
	fn := c.resubscribeFn
	c.mu.Unlock()

	c.logger.Info("resubscribed after reconnect", zap.Strings("channels", channels))
	if fn != nil {
		fn(channels)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
