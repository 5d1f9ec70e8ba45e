// Command gatewayctl provides command-line access to a channel gateway.
//
// Settings come from gatewayctl.yaml (current directory or
// $HOME/.config/gatewayctl) and GATEWAY_* environment variables:
//
//	url        GATEWAY_URL        WebSocket URL of the gateway
//	client_id  GATEWAY_CLIENT_ID  4-character client id
//	api_key    GATEWAY_API_KEY    API key
//	timeout    GATEWAY_TIMEOUT    per-command timeout (default 10s)
//	debug      GATEWAY_DEBUG      development logging
//
// Usage:
//
//	gatewayctl ping
//	gatewayctl publish <channel> <data>
//	gatewayctl subscribe <channel> [channel...]
//	gatewayctl call <api> <json>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	gateway "github.com/layr8/gateway-go-sdk"
)

func main() {
	configPath := flag.String("config", "", "path to a gatewayctl.yaml")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	v, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gatewayctl: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(v.GetBool("debug"))
	defer logger.Sync()

	client, err := gateway.NewClient(gateway.Config{
		URL:      v.GetString("url"),
		ClientID: v.GetString("client_id"),
		APIKey:   v.GetString("api_key"),
	}, gateway.LogErrors(logger), gateway.WithLogger(logger))
	if err != nil {
		logger.Fatal("create client", zap.Error(err))
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		logger.Fatal("connect", zap.Error(err))
	}

	args := flag.Args()
	timeout := v.GetDuration("timeout")
	if err := run(ctx, client, timeout, args[0], args[1:]); err != nil {
		logger.Fatal(args[0], zap.Error(err))
	}
}

func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("timeout", 10*time.Second)
	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gatewayctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gatewayctl")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func newLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func run(ctx context.Context, client *gateway.Client, timeout time.Duration, cmd string, args []string) error {
	switch cmd {
	case "ping":
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		start := time.Now()
		resp, err := client.Ping(callCtx, nil)
		if err != nil {
			return err
		}
		fmt.Printf("pong in %s (server time %d)\n", time.Since(start).Round(time.Millisecond), resp.Time)
		return nil

	case "publish":
		if len(args) != 2 {
			return errors.New("usage: publish <channel> <data>")
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := client.Publish(callCtx, args[0], args[1], nil)
		if err != nil {
			return err
		}
		fmt.Printf("published to %s (delivered=%d)\n", args[0], resp.Delivered)
		return nil

	case "subscribe":
		if len(args) == 0 {
			return errors.New("usage: subscribe <channel> [channel...]")
		}
		return subscribe(ctx, client, timeout, args)

	case "call":
		if len(args) != 2 {
			return errors.New("usage: call <api> <json>")
		}
		var body json.RawMessage
		if err := json.Unmarshal([]byte(args[1]), &body); err != nil {
			return fmt.Errorf("request body: %w", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var out json.RawMessage
		if err := client.Send(callCtx, args[0], body, &out, nil); err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// subscribe prints pushes until interrupted.
func subscribe(ctx context.Context, client *gateway.Client, timeout time.Duration, channels []string) error {
	obs := gateway.NewObserver()
	for _, ch := range channels {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := client.Subscribe(callCtx, ch, obs, func(p *gateway.Push) error {
			fmt.Printf("[%s] %s\n", p.Channel, p.Payload)
			return nil
		}, nil)
		cancel()
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	client.OnResubscribe(func(channels []string) {
		fmt.Fprintf(os.Stderr, "reconnected, resubscribed %v\n", channels)
	})

	<-ctx.Done()

	unsubCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, ch := range channels {
		client.Unsubscribe(unsubCtx, ch, obs, nil)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: gatewayctl [-config file] <command> [args]

commands:
  ping
  publish <channel> <data>
  subscribe <channel> [channel...]
  call <api> <json>`)
}
