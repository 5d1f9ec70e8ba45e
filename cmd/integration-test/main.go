// Integration test against a live gateway.
//
// Prerequisites:
//   - A gateway listening on GATEWAY_URL (default ws://localhost:8080/gateway)
//   - GATEWAY_API_KEY set if the gateway requires one
//
// Usage:
//
//	go run ./cmd/integration-test
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	gateway "github.com/layr8/gateway-go-sdk"
)

const defaultURL = "ws://localhost:8080/gateway"

type tally struct {
	passed, failed int
}

func (t *tally) check(name string, err error) {
	if err != nil {
		fmt.Printf("  FAIL: %s: %v\n", name, err)
		t.failed++
		return
	}
	fmt.Printf("  PASS: %s\n", name)
	t.passed++
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	url := os.Getenv("GATEWAY_URL")
	if url == "" {
		url = defaultURL
	}

	fmt.Println("=== Gateway Go SDK Integration Test ===")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var res tally

	fmt.Println("[Test 1] Connect...")
	client, err := gateway.NewClient(gateway.Config{URL: url, ClientID: "itst"},
		gateway.LogErrors(logger), gateway.WithLogger(logger))
	if err != nil {
		logger.Fatal("NewClient", zap.Error(err))
	}
	if err := client.Connect(ctx); err != nil {
		logger.Fatal("Connect", zap.Error(err))
	}
	defer client.Close()
	res.check("connect", nil)

	fmt.Println("[Test 2] Ping...")
	_, err = client.Ping(ctx, nil)
	res.check("ping", err)

	fmt.Println("[Test 3] Two observers share one channel...")
	channel := fmt.Sprintf("sdk-itest-%d", time.Now().UnixNano())
	first, second := gateway.NewObserver(), gateway.NewObserver()
	got := make(chan string, 2)
	deliver := func(p *gateway.Push) error {
		got <- p.Payload
		return nil
	}
	_, err = client.Subscribe(ctx, channel, first, deliver, nil)
	res.check("subscribe first", err)
	_, err = client.Subscribe(ctx, channel, second, deliver, nil)
	res.check("subscribe second", err)

	_, err = client.Subscribe(ctx, channel, first, deliver, nil)
	if errors.Is(err, gateway.ErrDuplicateObserver) {
		err = nil
	} else {
		err = fmt.Errorf("want ErrDuplicateObserver, got %v", err)
	}
	res.check("duplicate observer rejected", err)

	fmt.Println("[Test 4] Publish fans out to both observers...")
	_, err = client.Publish(ctx, channel, `{"hello":"gateway"}`, nil)
	res.check("publish", err)
	for i := 0; i < 2; i++ {
		select {
		case payload := <-got:
			res.check(fmt.Sprintf("delivery %d (%s)", i+1, payload), nil)
		case <-time.After(5 * time.Second):
			res.check(fmt.Sprintf("delivery %d", i+1), errors.New("timed out"))
		}
	}

	fmt.Println("[Test 5] Unsubscribe is local until the last observer leaves...")
	resp, err := client.Unsubscribe(ctx, channel, first, nil)
	if err == nil && !resp.Local {
		err = errors.New("first unsubscribe reached the gateway")
	}
	res.check("unsubscribe first", err)
	resp, err = client.Unsubscribe(ctx, channel, second, nil)
	if err == nil && resp.Local {
		err = errors.New("last unsubscribe stayed local")
	}
	res.check("unsubscribe last", err)

	fmt.Println("[Test 6] Reserved header is rejected...")
	err = client.Send(ctx, gateway.APIPing, struct{}{}, nil, gateway.Headers{gateway.HeaderAPI: "Ping"})
	if errors.Is(err, gateway.ErrReservedHeader) {
		err = nil
	} else {
		err = fmt.Errorf("want ErrReservedHeader, got %v", err)
	}
	res.check("reserved header", err)

	fmt.Println()
	fmt.Printf("=== Results: %d passed, %d failed ===\n", res.passed, res.failed)
	if res.failed > 0 {
		os.Exit(1)
	}
}
