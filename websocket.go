package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

// Frame types of the gateway wire protocol.
const (
	frameCall      = "call"
	frameReply     = "reply"
	framePush      = "push"
	frameHeartbeat = "heartbeat"
)

// frame is the wire format of every WebSocket text message.
type frame struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload string            `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// callResult is delivered to a waiting Send.
type callResult struct {
	payload []byte
	err     error
}

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	URL         string
	APIKey      string
	CallTimeout time.Duration
	DialInitial time.Duration
	DialMax     time.Duration
	Logger      *zap.Logger
}

// WebSocketTransport implements Transport over a single WebSocket.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	logger *zap.Logger

	mu         sync.Mutex // protects conn writes, refCounter, pending, hooks
	conn       *websocket.Conn
	refCounter uint64
	pending    map[string]chan callResult
	hooks      TransportHooks
	closed     bool

	// Pushes are delivered on their own goroutine so a callback may make
	// calls whose replies the read loop still has to read. The queue is
	// unbounded: the read loop never waits on delivery.
	pushMu    sync.Mutex
	pushQueue [][]byte
	pushReady chan struct{}

	started sync.Once
	done    chan struct{}
}

// NewWebSocketTransport returns an unconnected transport.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.DialInitial <= 0 {
		cfg.DialInitial = 500 * time.Millisecond
	}
	if cfg.DialMax < cfg.DialInitial {
		cfg.DialMax = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketTransport{
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[string]chan callResult),
		pushReady: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// SetHooks implements Transport.
func (t *WebSocketTransport) SetHooks(h TransportHooks) {
	t.mu.Lock()
	t.hooks = h
	t.mu.Unlock()
}

// Connect dials the gateway once.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClientClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	return t.install(conn)
}

// Recover drops the current connection, if any, and redials with
// exponential backoff until it succeeds, ctx ends or the transport is closed.
func (t *WebSocketTransport) Recover(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClientClosed
	}
	old := t.conn
	t.conn = nil
	pending := t.takePending()
	t.mu.Unlock()

	if old != nil {
		old.Close()
	}
	failPending(pending, &ConnectionError{URL: t.cfg.URL, Reason: "connection reset"})

	b := newBackoff(t.cfg.DialInitial, t.cfg.DialMax)
	for attempt := 1; ; attempt++ {
		conn, err := t.dial(ctx)
		if err == nil {
			t.logger.Info("gateway transport recovered", zap.String("url", t.cfg.URL), zap.Int("attempt", attempt))
			return t.install(conn)
		}
		t.logger.Warn("gateway redial failed", zap.String("url", t.cfg.URL), zap.Int("attempt", attempt), zap.Error(err))
		if err := b.wait(ctx); err != nil {
			return err
		}
		select {
		case <-t.done:
			return ErrClientClosed
		default:
		}
	}
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if t.cfg.APIKey != "" {
		q := u.Query()
		q.Set("api_key", t.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, &ConnectionError{URL: t.cfg.URL, Reason: err.Error()}
	}
	return conn, nil
}

// install makes conn current and starts its reader. If another dial won
// the race, conn is closed and the current connection kept.
func (t *WebSocketTransport) install(conn *websocket.Conn) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrClientClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		conn.Close()
		return nil
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	t.started.Do(func() {
		go t.heartbeatLoop()
		go t.pushLoop()
	})
	return nil
}

// Send implements Transport. The reply is matched to the call by frame id.
func (t *WebSocketTransport) Send(ctx context.Context, payload []byte, headers Headers) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClientClosed
	}
	if t.conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	t.refCounter++
	id := strconv.FormatUint(t.refCounter, 10)
	replyCh := make(chan callResult, 1)
	t.pending[id] = replyCh
	err := t.writeLocked(frame{
		Type:    frameCall,
		ID:      id,
		Headers: headers,
		Payload: string(payload),
	})
	if err != nil {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if err != nil {
		return nil, &ConnectionError{URL: t.cfg.URL, Reason: fmt.Sprintf("send call: %v", err)}
	}

	timer := time.NewTimer(t.cfg.CallTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.payload, res.err
	case <-timer.C:
		t.forget(id)
		return nil, &ConnectionError{URL: t.cfg.URL, Reason: fmt.Sprintf("call %s timed out after %s", id, t.cfg.CallTimeout)}
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	}
}

// Close implements Transport.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	t.conn = nil
	pending := t.takePending()
	t.mu.Unlock()

	failPending(pending, ErrClientClosed)
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.connLost(conn, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		t.handleInbound(f)
	}
}

// connLost reports a dropped connection once. Readers of connections that
// were already replaced by Recover or Close stay silent.
func (t *WebSocketTransport) connLost(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	pending := t.takePending()
	hooks := t.hooks
	t.mu.Unlock()

	conn.Close()
	connErr := &ConnectionError{URL: t.cfg.URL, Reason: cause.Error()}
	failPending(pending, connErr)
	if hooks != nil {
		hooks.OnPeerClosed(connErr)
	}
}

func (t *WebSocketTransport) handleInbound(f frame) {
	switch f.Type {
	case frameReply:
		t.mu.Lock()
		ch := t.pending[f.ID]
		delete(t.pending, f.ID)
		t.mu.Unlock()
		if ch == nil {
			return
		}
		res := callResult{payload: []byte(f.Payload)}
		if f.Error != "" {
			res.err = &ConnectionError{URL: t.cfg.URL, Reason: fmt.Sprintf("call %s rejected: %s", f.ID, f.Error)}
		}
		ch <- res
	case framePush:
		t.enqueuePush([]byte(f.Payload))
	case frameHeartbeat:
	default:
		t.logger.Debug("ignoring frame", zap.String("type", f.Type))
	}
}

func (t *WebSocketTransport) enqueuePush(raw []byte) {
	t.pushMu.Lock()
	t.pushQueue = append(t.pushQueue, raw)
	t.pushMu.Unlock()

	select {
	case t.pushReady <- struct{}{}:
	default:
	}
}

// pushLoop hands pushes to the hooks one at a time, in arrival order.
func (t *WebSocketTransport) pushLoop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.pushReady:
		}

		for {
			t.pushMu.Lock()
			if len(t.pushQueue) == 0 {
				t.pushQueue = nil
				t.pushMu.Unlock()
				break
			}
			raw := t.pushQueue[0]
			t.pushQueue[0] = nil
			t.pushQueue = t.pushQueue[1:]
			t.pushMu.Unlock()

			select {
			case <-t.done:
				return
			default:
			}

			t.mu.Lock()
			hooks := t.hooks
			t.mu.Unlock()
			if hooks != nil {
				hooks.OnPush(raw)
			}
		}
	}
}

func (t *WebSocketTransport) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.conn != nil {
				if err := t.writeLocked(frame{Type: frameHeartbeat}); err != nil {
					t.logger.Debug("heartbeat failed", zap.Error(err))
				}
			}
			t.mu.Unlock()
		}
	}
}

// writeLocked writes f to the current connection. t.mu must be held.
func (t *WebSocketTransport) writeLocked(f frame) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// takePending detaches all waiting calls. t.mu must be held.
func (t *WebSocketTransport) takePending() map[string]chan callResult {
	pending := t.pending
	t.pending = make(map[string]chan callResult)
	return pending
}

func failPending(pending map[string]chan callResult, err error) {
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}
