package gateway

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClient_Send_ReservedHeader(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)

	err := client.Send(testContext(t), "Orders/List", nil, nil, Headers{HeaderAPI: "Other"})
	if !errors.Is(err, ErrReservedHeader) {
		t.Fatalf("Send() error = %v, want ErrReservedHeader", err)
	}
	if n := len(ft.callsFor("Orders/List")) + len(ft.callsFor("Other")); n != 0 {
		t.Errorf("Send() made %d transport calls, want 0", n)
	}
}

func TestClient_Send_ReservedHeaderAnyCase(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)

	for _, key := range []string{"X-Api", "X-API", "x-API"} {
		err := client.Send(testContext(t), "Orders/List", nil, nil, Headers{key: "Other"})
		if !errors.Is(err, ErrReservedHeader) {
			t.Errorf("Send() with %q error = %v, want ErrReservedHeader", key, err)
		}
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.calls) != 0 {
		t.Errorf("Send() made %d transport calls, want 0", len(ft.calls))
	}
}

func TestClient_Send_Headers(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	headers := Headers{"tenant": "acme"}

	if err := client.Send(testContext(t), "Orders/List", map[string]int{"limit": 5}, nil, headers); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	calls := ft.callsFor("Orders/List")
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	got := calls[0]
	if got.Headers["tenant"] != "acme" {
		t.Errorf("tenant header = %q, want acme", got.Headers["tenant"])
	}
	if got.Headers[HeaderRequestID] == "" {
		t.Error("request id header should be generated")
	}
	if got.Headers[HeaderClientID] != "test" {
		t.Errorf("client id header = %q, want test", got.Headers[HeaderClientID])
	}
	if string(got.Payload) != `{"limit":5}` {
		t.Errorf("payload = %s, want {\"limit\":5}", got.Payload)
	}
	if len(headers) != 1 {
		t.Errorf("caller headers mutated: %v", headers)
	}
}

func TestClient_Send_KeepsCallerRequestID(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)

	client.Send(testContext(t), "Orders/List", nil, nil, Headers{HeaderRequestID: "req-1"})

	if got := ft.callsFor("Orders/List")[0].Headers[HeaderRequestID]; got != "req-1" {
		t.Errorf("request id = %q, want req-1", got)
	}
}

func TestClient_Send_DecodesResponse(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	ft.setRespond(func(sentCall) ([]byte, error) {
		return []byte(`{"items":["x","y"]}`), nil
	})

	var out struct {
		Items []string `json:"items"`
	}
	if err := client.Send(testContext(t), "Orders/List", nil, &out, nil); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("Items = %v, want 2 items", out.Items)
	}
}

func TestCall_Generic(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	ft.setRespond(func(sentCall) ([]byte, error) {
		return []byte(`{"count":3}`), nil
	})

	type countResponse struct {
		Count int `json:"count"`
	}
	resp, err := Call[countResponse](testContext(t), client, "Orders/Count", nil, nil)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("Count = %d, want 3", resp.Count)
	}
}

func TestClient_Send_ServerError(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	ft.setRespond(func(sentCall) ([]byte, error) {
		return []byte(`{"error":"channel not allowed"}`), nil
	})

	err := client.Send(testContext(t), "Orders/List", nil, nil, nil)
	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("Send() error = %v, want *ServerError", err)
	}
	if srvErr.API != "Orders/List" || srvErr.Message != "channel not allowed" {
		t.Errorf("ServerError = %+v", srvErr)
	}
}

func TestClient_Send_TransportErrorUnchanged(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	transportErr := &ConnectionError{URL: "ws://gw", Reason: "timeout"}
	ft.setRespond(func(sentCall) ([]byte, error) {
		return nil, transportErr
	})

	err := client.Send(testContext(t), "Orders/List", nil, nil, nil)
	if err != error(transportErr) {
		t.Errorf("Send() error = %v, want the transport error unchanged", err)
	}
}

func TestClient_Send_BadResponse(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	ft.setRespond(func(sentCall) ([]byte, error) {
		return []byte(`not json`), nil
	})

	if err := client.Send(testContext(t), "Orders/List", nil, nil, nil); err == nil {
		t.Fatal("Send() should fail on an undecodable response")
	}
}

func TestClient_Send_UnmarshalableRequest(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)

	err := client.Send(testContext(t), "Orders/List", make(chan int), nil, nil)
	if err == nil {
		t.Fatal("Send() should fail to marshal a channel")
	}
	if n := len(ft.callsFor("Orders/List")); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestClient_Send_AfterClose(t *testing.T) {
	client, _ := newFakeClient(t, discardErrors)
	client.Close()

	if err := client.Send(testContext(t), "Orders/List", nil, nil, nil); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClientClosed", err)
	}
}

func TestClient_PublishAndPing(t *testing.T) {
	client, ft := newFakeClient(t, discardErrors)
	ft.setRespond(func(c sentCall) ([]byte, error) {
		switch c.API {
		case APIPublish:
			return []byte(`{"delivered":2}`), nil
		case APIPing:
			return []byte(`{"time":1700000000000}`), nil
		}
		return []byte(`{}`), nil
	})

	pub, err := client.Publish(testContext(t), "orders", `{"id":1}`, nil)
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if pub.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", pub.Delivered)
	}
	var req publishRequest
	json.Unmarshal(ft.callsFor(APIPublish)[0].Payload, &req)
	if req.Cmd != "orders" || req.Data != `{"id":1}` {
		t.Errorf("publish body = %+v", req)
	}

	pong, err := client.Ping(testContext(t), nil)
	if err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if pong.Time != 1700000000000 {
		t.Errorf("Time = %d", pong.Time)
	}
	if body := string(ft.callsFor(APIPing)[0].Payload); body != `{}` {
		t.Errorf("ping body = %s, want {}", body)
	}
}
