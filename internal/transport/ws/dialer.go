package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
)

const defaultReadLimit = 1 << 20

// Dialer opens WebSocket connections to the chat and notification channels.
type Dialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
	log        *zerolog.Logger
}

var _ core.Dialer = (*Dialer)(nil)

// NewDialer builds a dialer with the default read limit.
func NewDialer(logger *zerolog.Logger) *Dialer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dialer{ReadLimit: defaultReadLimit, log: logger}
}

// Dial connects to url. Handshake rejections with 401/403 are reported as core.ErrAuthRequired.
func (d *Dialer) Dial(ctx context.Context, url string) (core.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("ws handshake: status %d: %w", resp.StatusCode, core.ErrAuthRequired)
		}
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	d.log.Debug().Msg("ws connected")
	return &Conn{conn: conn}, nil
}

// Conn adapts *websocket.Conn to core.Conn.
type Conn struct {
	conn *websocket.Conn
}

// ReadFrame returns the payload of the next message. When the connection ends the
// error is a *core.CloseError carrying the peer's close status, or 1006 without one.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, closeError(err)
	}
	return data, nil
}

// WriteFrame sends v as a JSON text message.
func (c *Conn) WriteFrame(ctx context.Context, v any) error {
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Close performs the closing handshake with code.
func (c *Conn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

func closeError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &core.CloseError{Code: int(ce.Code), Reason: ce.Reason, Err: err}
	}
	return &core.CloseError{Code: core.StatusAbnormalClosure, Err: err}
}
