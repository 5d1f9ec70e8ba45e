package gateway

import "context"

// Transport is the duplex connection the client runs on.
// The default implementation is WebSocketTransport (websocket.go); tests
// and embedders may supply their own through WithTransport.
type Transport interface {
	// Send performs one request/response round trip. The transport owns
	// timeout semantics.
	Send(ctx context.Context, payload []byte, headers Headers) ([]byte, error)

	// Recover re-establishes the connection after the peer closed it.
	Recover(ctx context.Context) error

	// SetHooks installs the receiver of inbound pushes and disconnect events.
	// The client calls it exactly once, at construction.
	SetHooks(h TransportHooks)

	// Close shuts the connection down and stops hook delivery.
	Close() error
}

// TransportHooks receives transport events. *Client implements it.
type TransportHooks interface {
	// OnPush is called for every inbound push frame, one at a time and in
	// delivery order. It may block on calls made through the same transport,
	// so it must not run on the goroutine that reads call replies.
	OnPush(raw []byte)

	// OnPeerClosed is called when the connection drops.
	OnPeerClosed(err error)
}

// connector is implemented by transports that need an explicit dial
// before the first call.
type connector interface {
	Connect(ctx context.Context) error
}
