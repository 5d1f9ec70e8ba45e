package gateway

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"
)

// DefaultCallTimeout bounds a single call on the default transport.
const DefaultCallTimeout = 30 * time.Second

// Config holds the configuration for a gateway client.
type Config struct {
	// URL is the WebSocket URL of the gateway. Not needed when a transport
	// is supplied with WithTransport.
	// Fallback: GATEWAY_URL environment variable.
	URL string

	// ClientID tags every request id. Exactly 4 characters.
	// Fallback: GATEWAY_CLIENT_ID environment variable.
	ClientID string

	// APIKey authenticates the default transport.
	// Fallback: GATEWAY_API_KEY environment variable.
	APIKey string

	// CallTimeout bounds a single call on the default transport.
	// Zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

// resolveConfig fills empty fields from environment variables and validates required fields.
func resolveConfig(cfg Config, haveTransport bool) (Config, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("GATEWAY_URL")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("GATEWAY_CLIENT_ID")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GATEWAY_API_KEY")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	if n := utf8.RuneCountInString(cfg.ClientID); n != 4 {
		return cfg, fmt.Errorf("%w: got %q (set in Config or GATEWAY_CLIENT_ID env)", ErrInvalidClientID, cfg.ClientID)
	}
	if cfg.URL == "" && !haveTransport {
		return cfg, fmt.Errorf("URL is required (set in Config or GATEWAY_URL env)")
	}

	return cfg, nil
}
