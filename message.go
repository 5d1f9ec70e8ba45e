package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Header keys understood by the gateway.
const (
	HeaderAPI       = "x-api" // reserved: derived from the api argument of a call
	HeaderRequestID = "x-request-id"
	HeaderClientID  = "x-client-id"
)

// API identifiers of the built-in operations.
const (
	APISubscribe   = "Subscribe"
	APIUnsubscribe = "Unsubscribe"
	APIPublish     = "Publish"
	APIPing        = "Ping"
)

// Headers are string key/value pairs attached to calls and pushes.
type Headers map[string]string

// Clone returns a copy of h that is safe to mutate. Clone of nil is an
// empty, non-nil map.
func (h Headers) Clone() Headers {
	cp := make(Headers, len(h)+2)
	for k, v := range h {
		cp[k] = v
	}
	return cp
}

// Push is a server-initiated message delivered on a channel.
type Push struct {
	Channel string
	Payload string
	Headers Headers
}

// UnmarshalPayload decodes the push payload, which by convention is JSON.
func (p *Push) UnmarshalPayload(v any) error {
	return json.Unmarshal([]byte(p.Payload), v)
}

// pushEnvelope is the wire format of a push payload.
type pushEnvelope struct {
	Channel string                     `json:"channel"`
	Payload *string                    `json:"payload"`
	Headers map[string]json.RawMessage `json:"headers"`
}

// parsePush parses and validates an inbound push.
func parsePush(raw []byte) (*Push, error) {
	var env pushEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse push: %w", err)
	}
	if env.Channel == "" {
		return nil, errors.New("parse push: missing channel")
	}
	if env.Payload == nil {
		return nil, errors.New("parse push: missing payload")
	}
	return &Push{
		Channel: env.Channel,
		Payload: *env.Payload,
		Headers: normalizeHeaders(env.Headers),
	}, nil
}

// normalizeHeaders flattens push header values to strings. Strings are
// unquoted, null becomes empty and anything else keeps its JSON text.
func normalizeHeaders(raw map[string]json.RawMessage) Headers {
	h := make(Headers, len(raw))
	for k, v := range raw {
		var s string
		switch {
		case json.Unmarshal(v, &s) == nil:
			h[k] = s
		case bytes.Equal(bytes.TrimSpace(v), []byte("null")):
			h[k] = ""
		default:
			h[k] = string(bytes.TrimSpace(v))
		}
	}
	return h
}

// channelsRequest is the body of Subscribe and Unsubscribe.
type channelsRequest struct {
	Cmd []string `json:"cmd"`
}

// publishRequest is the body of Publish.
type publishRequest struct {
	Cmd  string `json:"cmd"`
	Data string `json:"data"`
}

// SubscribeResponse is the gateway's answer to Subscribe.
type SubscribeResponse struct {
	Error    string   `json:"error,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// UnsubscribeResponse is the gateway's answer to Unsubscribe. Local is true
// when other observers still hold the channel and no call was made.
type UnsubscribeResponse struct {
	Error string `json:"error,omitempty"`
	Local bool   `json:"-"`
}

// PublishResponse is the gateway's answer to Publish.
type PublishResponse struct {
	Error     string `json:"error,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
}

// PingResponse is the gateway's answer to Ping.
type PingResponse struct {
	Error string `json:"error,omitempty"`
	Time  int64  `json:"time,omitempty"`
}

// errorField is decoded from every response to detect server errors.
type errorField struct {
	Error string `json:"error"`
}
