package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// discardErrors is a no-op ErrorHandler used in tests that don't assert error handler behavior.
var discardErrors = func(SDKError) {}

type sentCall struct {
	API     string
	Payload []byte
	Headers Headers
}

func (c sentCall) channels(t *testing.T) []string {
	t.Helper()
	var req channelsRequest
	if err := json.Unmarshal(c.Payload, &req); err != nil {
		t.Fatalf("decode %s payload %s: %v", c.API, c.Payload, err)
	}
	return req.Cmd
}

// fakeTransport records calls and answers them with respond.
type fakeTransport struct {
	mu         sync.Mutex
	calls      []sentCall
	hooks      TransportHooks
	respond    func(sentCall) ([]byte, error)
	recoverErr error
	recovers   int
	closed     bool
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte, headers Headers) ([]byte, error) {
	call := sentCall{API: headers[HeaderAPI], Payload: payload, Headers: headers}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(call)
	}
	return []byte(`{}`), nil
}

func (f *fakeTransport) Recover(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovers++
	return f.recoverErr
}

func (f *fakeTransport) SetHooks(h TransportHooks) {
	f.mu.Lock()
	f.hooks = h
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) setRespond(fn func(sentCall) ([]byte, error)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeTransport) callsFor(api string) []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCall
	for _, c := range f.calls {
		if c.API == api {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) recoverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recovers
}

// newFakeClient returns a client on a fakeTransport. It is closed on cleanup.
func newFakeClient(t *testing.T, onError ErrorHandler, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	opts = append([]Option{WithTransport(ft)}, opts...)
	client, err := NewClient(Config{ClientID: "test"}, onError, opts...)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, ft
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewClient_InstallsHooks(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)

	ft.mu.Lock()
	hooks := ft.hooks
	ft.mu.Unlock()

	if hooks != TransportHooks(client) {
		t.Fatal("NewClient() should install the client as transport hooks")
	}
}

func TestClient_CloseClosesTransport(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if !ft.closed {
		t.Error("Close() should close the transport")
	}
}
