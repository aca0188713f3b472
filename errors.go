package slidesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sentinel errors for client state.
var (
	ErrNotConnected = errors.New("client is not connected")
	ErrClientClosed = errors.New("client is closed")
)

// ConnectionError represents a failure to open or keep the connection to the
// sync server.
type ConnectionError struct {
	URL    string
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s]: %s", e.URL, e.Reason)
}

// ErrorKind classifies errors that cannot be returned to a caller.
type ErrorKind int

const (
	ErrParseFailure    ErrorKind = iota // inbound frame is not a JSON object
	ErrHandlerPanic                     // handler or update callback panicked
	ErrTransportClosed                  // dial failed or connection dropped; a reconnect may follow
	ErrTransportWrite                   // failed to write to the connection
	ErrEncodeFailure                    // outbound payload could not be serialized
)

var errorKindNames = [...]string{
	ErrParseFailure:    "ErrParseFailure",
	ErrHandlerPanic:    "ErrHandlerPanic",
	ErrTransportClosed: "ErrTransportClosed",
	ErrTransportWrite:  "ErrTransportWrite",
	ErrEncodeFailure:   "ErrEncodeFailure",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// SyncError is an error the client could not deliver to a direct caller.
// These errors are routed to the ErrorHandler provided at client creation.
type SyncError struct {
	Kind      ErrorKind
	Type      string // discriminator value, if known
	Cause     error
	Raw       []byte // raw frame (for parse failures)
	Timestamp time.Time
}

func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (type=%s)", e.Kind, e.Cause, e.Type)
	}
	return fmt.Sprintf("%s (type=%s)", e.Kind, e.Type)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is called for every client error that cannot be returned to a
// direct caller. It MUST be provided when creating a client.
type ErrorHandler func(SyncError)

// LogErrors returns an ErrorHandler that logs every error to logger.
// Transport closures are expected during reconnects and log at Warn.
func LogErrors(logger *slog.Logger) ErrorHandler {
	return func(e SyncError) {
		level := slog.LevelError
		if e.Kind == ErrTransportClosed {
			level = slog.LevelWarn
		}
		attrs := []any{"kind", e.Kind.String()}
		if e.Type != "" {
			attrs = append(attrs, "type", e.Type)
		}
		if e.Cause != nil {
			attrs = append(attrs, "err", e.Cause)
		}
		if len(e.Raw) > 0 {
			attrs = append(attrs, "bytes", len(e.Raw))
		}
		logger.Log(context.Background(), level, "slidesync error", attrs...)
	}
}
