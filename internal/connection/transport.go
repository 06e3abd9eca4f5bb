package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// maxFrameSize bounds a single inbound frame. Speech frames carry whole
	// WAV clips encoded as JSON number arrays.
	maxFrameSize = 16 << 20
	writeWait    = 10 * time.Second
)

// Conn is one live message-oriented session.
type Conn interface {
	// ReadMessage blocks for the next text frame.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error
	// Close sends a normal close signal and releases the connection.
	Close() error
}

// Transport opens sessions.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError reports that the remote side closed the session.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("connection closed (%d)", e.Code)
	}
	return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Text)
}

// Clean reports whether the close code signals an orderly shutdown.
func (e *CloseError) Clean() bool {
	return e.Code == websocket.CloseNormalClosure || e.Code == websocket.CloseGoingAway
}

// IsCleanClose reports whether err is a clean remote close.
func IsCleanClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) && ce.Clean()
}

// WebsocketTransport dials sessions with gorilla/websocket.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWebsocketTransport returns a transport whose dials give up after
// handshakeTimeout.
func NewWebsocketTransport(handshakeTimeout time.Duration) *WebsocketTransport {
	return &WebsocketTransport{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   64 << 10,
			WriteBufferSize:  4 << 10,
		},
	}
}

// Dial implements Transport.
func (t *WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.Dialer.DialContext(ctx, url, t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (HTTP status: %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, &CloseError{Code: ce.Code, Text: ce.Text}
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
