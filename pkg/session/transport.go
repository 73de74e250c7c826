package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// CloseNormal is the close code for a deliberate, non-failure shutdown.
// Any other close code on a live session triggers reconnection.
const CloseNormal = 1000

// CloseError is returned from [Conn.Read] when the peer closed the
// connection with a close frame.
type CloseError struct {
	// Code is the WebSocket close code.
	Code int

	// Reason is the close reason supplied by the peer, if any.
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("session: connection closed (code %d): %s", e.Code, e.Reason)
}

// Transport opens duplex connections for the [Manager]. The production
// implementation is [WebSocketTransport]; tests inject a scripted mock.
type Transport interface {
	// Dial opens a connection to url. The context bounds the dial only.
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one duplex text-frame connection.
type Conn interface {
	// Read blocks until the next inbound frame. A peer close surfaces as a
	// *CloseError.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one outbound text frame.
	Write(ctx context.Context, data []byte) error

	// Ping sends a liveness probe and waits for the pong.
	Ping(ctx context.Context) error

	// Close closes the connection with the given close code. Idempotent.
	Close(code int, reason string) error
}

// Compile-time assertions that the WebSocket implementation satisfies the
// transport interfaces.
var _ Transport = WebSocketTransport{}
var _ Conn = (*wsConn)(nil)

// WebSocketTransport dials real WebSocket connections via coder/websocket.
type WebSocketTransport struct{}

// Dial implements [Transport].
func (WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *wsConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
