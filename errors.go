package gateway

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors. Operations wrap them with context, so match with errors.Is.
var (
	ErrNotConnected      = errors.New("client is not connected")
	ErrClientClosed      = errors.New("client is closed")
	ErrDuplicateObserver = errors.New("observer already subscribed to channel")
	ErrNotSubscribed     = errors.New("observer not subscribed to channel")
	ErrReservedHeader    = errors.New("reserved header set by caller")
	ErrInvalidClientID   = errors.New("client id must be exactly 4 characters")
)

// ServerError is an application-level error reported by the gateway in an
// otherwise well-formed response.
type ServerError struct {
	API     string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error [%s]: %s", e.API, e.Message)
}

// ConnectionError represents a failure to connect or maintain the
// connection to the gateway.
type ConnectionError struct {
	URL    string
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s]: %s", e.URL, e.Reason)
}

// ErrorKind classifies SDK-level errors that cannot be returned to a caller.
type ErrorKind int

const (
	ErrParseFailure       ErrorKind = iota // inbound push couldn't be parsed
	ErrCallbackFailure                     // observer callback returned an error
	ErrCallbackPanic                       // observer callback panicked
	ErrRecoverFailure                      // transport recovery failed
	ErrResubscribeFailure                  // batched resubscribe after recovery failed
)

var errorKindNames = [...]string{
	ErrParseFailure:       "ErrParseFailure",
	ErrCallbackFailure:    "ErrCallbackFailure",
	ErrCallbackPanic:      "ErrCallbackPanic",
	ErrRecoverFailure:     "ErrRecoverFailure",
	ErrResubscribeFailure: "ErrResubscribeFailure",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// SDKError represents an error that the SDK could not deliver to a direct caller.
// These errors are routed to the ErrorHandler provided at client creation.
type SDKError struct {
	Kind      ErrorKind
	Channel   string   // push channel, if known
	Channels  []string // resubscribe batch, if any
	Observer  Observer
	Cause     error
	Raw       []byte // raw push (for parse failures)
	Timestamp time.Time
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (channel=%s observer=%s)", e.Kind, e.Cause, e.Channel, e.Observer)
	}
	return fmt.Sprintf("%s (channel=%s observer=%s)", e.Kind, e.Channel, e.Observer)
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is called for every SDK-level error that cannot be returned
// to a direct caller. It MUST be provided when creating a client.
type ErrorHandler func(SDKError)

// LogErrors returns an ErrorHandler that logs all SDK errors to the given logger.
func LogErrors(logger *zap.Logger) ErrorHandler {
	return func(e SDKError) {
		fields := []zap.Field{
			zap.Stringer("kind", e.Kind),
			zap.String("channel", e.Channel),
			zap.Stringer("observer", e.Observer),
			zap.Time("at", e.Timestamp),
		}
		if len(e.Channels) > 0 {
			fields = append(fields, zap.Strings("channels", e.Channels))
		}
		if e.Cause != nil {
			fields = append(fields, zap.Error(e.Cause))
		}
		if len(e.Raw) > 0 {
			fields = append(fields, zap.ByteString("raw", e.Raw))
		}
		logger.Warn("gateway sdk error", fields...)
	}
}
