// Package gateway provides a Go client for a channel-based publish/subscribe
// messaging gateway reached over a persistent duplex connection.
//
// The client wraps a request/response Transport and exposes:
//
//   - Subscribe / Unsubscribe: attach observers to channels; any number of
//     local observers share one server-side subscription per channel
//   - Publish / Ping: one-shot calls
//   - Send: generic call to an arbitrary API path with a typed response
//
// Inbound pushes are fanned out to every observer of the push's channel.
// When the transport reports that the peer closed the connection, the
// client recovers the transport and resubscribes every live channel in a
// single batched call, retrying on a fixed delay until it succeeds or the
// client is closed.
//
// Basic usage:
//
//	client, err := gateway.NewClient(gateway.Config{
//	    URL:      "ws://localhost:8080/gateway",
//	    ClientID: "web1",
//	}, gateway.LogErrors(logger), gateway.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	obs := gateway.NewObserver()
//	_, err = client.Subscribe(ctx, "orders", obs, func(p *gateway.Push) error {
//	    log.Printf("order event: %s", p.Payload)
//	    return nil
//	}, nil)
package gateway
