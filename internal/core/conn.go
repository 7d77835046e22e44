package core

import (
	"context"
	"errors"
	"fmt"
)

// WebSocket close codes the session cares about.
const (
	StatusNormalClosure   = 1000
	StatusGoingAway       = 1001
	StatusAbnormalClosure = 1006
)

// Conn is one real-time connection to the backend.
// WriteFrame and Close must be safe to call concurrently with ReadFrame.
type Conn interface {
	// ReadFrame blocks until the next text frame arrives. When the connection ends it
	// returns an error from which CloseCode extracts the close status.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame encodes v as JSON and sends it.
	WriteFrame(ctx context.Context, v any) error
	// Close closes the connection with the given status code.
	Close(code int, reason string) error
}

// Dialer opens connections. Tests inject fakes; production uses transport/ws.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError reports the end of a connection.
type CloseError struct {
	Code   int
	Reason string
	Err    error
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection closed: status %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("connection closed: status %d", e.Code)
}

func (e *CloseError) Unwrap() error { return e.Err }

// CloseCode extracts the close status from a ReadFrame error.
// Errors without a close frame count as abnormal closure.
func CloseCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return StatusAbnormalClosure
}
