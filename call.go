package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Send calls an arbitrary gateway API with data as the JSON request body and
// decodes the response into out (which may be nil). HeaderAPI is derived
// from api and must not be present in headers.
func (c *Client) Send(ctx context.Context, api string, data any, out any, headers Headers) error {
	return c.call(ctx, api, data, out, headers)
}

// Call is Send with the response shape given as a type parameter.
func Call[T any](ctx context.Context, c *Client, api string, data any, headers Headers) (*T, error) {
	var out T
	if err := c.call(ctx, api, data, &out, headers); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, api string, data any, out any, headers Headers) error {
	for k := range headers {
		if strings.EqualFold(k, HeaderAPI) {
			return fmt.Errorf("%w: %q is derived from the api argument", ErrReservedHeader, k)
		}
	}
	if c.isClosed() {
		return ErrClientClosed
	}

	h := headers.Clone()
	h[HeaderAPI] = api
	if h[HeaderRequestID] == "" {
		h[HeaderRequestID] = c.ids.next()
	}
	if h[HeaderClientID] == "" {
		h[HeaderClientID] = c.cfg.ClientID
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", api, err)
	}

	resp, err := c.transport.Send(ctx, payload, h)
	if err != nil {
		c.logger.Warn("gateway call failed",
			zap.String("api", api),
			zap.String("request_id", h[HeaderRequestID]),
			zap.Error(err))
		return err
	}
	if len(resp) == 0 {
		resp = []byte(`{}`)
	}

	var status errorField
	if err := json.Unmarshal(resp, &status); err != nil {
		return fmt.Errorf("decode %s response: %w", api, err)
	}
	if status.Error != "" {
		return &ServerError{API: api, Message: status.Error}
	}
	if out != nil {
		if err := json.Unmarshal(resp, out); err != nil {
			return fmt.Errorf("decode %s response: %w", api, err)
		}
	}
	return nil
}
