package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FakeTransport is an in-memory Transport for tests. Every successful Dial
// produces a FakeConn the test can drive.
type FakeTransport struct {
	mu      sync.Mutex
	conns   []*FakeConn
	dialErr error
	hang    bool
}

// NewFakeTransport returns a transport whose dials succeed.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// FailDials makes subsequent dials return err. A nil err restores success.
func (t *FakeTransport) FailDials(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErr = err
}

// HangDials makes subsequent dials block until their context is done.
func (t *FakeTransport) HangDials(hang bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hang = hang
}

// Dial implements Transport.
func (t *FakeTransport) Dial(ctx context.Context, url string) (Conn, error) {
	t.mu.Lock()
	err, hang := t.dialErr, t.hang
	t.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.conns = append(t.conns, nil)
		return nil, err
	}

	c := &FakeConn{
		URL:     url,
		inbound: make(chan []byte, 64),
		remote:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	t.conns = append(t.conns, c)
	return c, nil
}

// Dials returns the number of dial attempts, failed ones included.
func (t *FakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Conn returns the connection from dial i, or nil if that dial failed or
// has not happened.
func (t *FakeTransport) Conn(i int) *FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

// Last returns the most recent successful connection.
func (t *FakeTransport) Last() *FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.conns) - 1; i >= 0; i-- {
		if t.conns[i] != nil {
			return t.conns[i]
		}
	}
	return nil
}

// WaitForDials polls until at least n dials happened.
func (t *FakeTransport) WaitForDials(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.Dials() >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return t.Dials() >= n
}

// FakeConn is one in-memory session.
type FakeConn struct {
	URL string

	inbound chan []byte
	remote  chan error
	done    chan struct{}

	mu       sync.Mutex
	written  [][]byte
	closed   bool
	writeErr error
}

// ReadMessage implements Conn.
func (c *FakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.remote:
		return nil, err
	case <-c.done:
		return nil, &CloseError{Code: websocket.CloseNormalClosure}
	}
}

// WriteMessage implements Conn.
func (c *FakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.closed {
		return &CloseError{Code: websocket.CloseAbnormalClosure}
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

// Close implements Conn.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Closed reports whether the local side closed the connection.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Deliver queues an inbound frame.
func (c *FakeConn) Deliver(frame any) {
	switch v := frame.(type) {
	case []byte:
		c.inbound <- v
	case string:
		c.inbound <- []byte(v)
	default:
		data, _ := json.Marshal(v)
		c.inbound <- data
	}
}

// RemoteClose simulates the service closing the session with code.
func (c *FakeConn) RemoteClose(code int, text string) {
	c.remote <- &CloseError{Code: code, Text: text}
}

// Drop simulates a transport failure without a close frame.
func (c *FakeConn) Drop(err error) {
	c.remote <- err
}

// FailWrites makes later writes return err.
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Frames returns the decoded outbound frames.
func (c *FakeConn) Frames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]map[string]any, 0, len(c.written))
	for _, data := range c.written {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// FramesOfType returns the outbound frames with the given type.
func (c *FakeConn) FramesOfType(t string) []map[string]any {
	var out []map[string]any
	for _, f := range c.Frames() {
		if f["type"] == t {
			out = append(out, f)
		}
	}
	return out
}

// WaitForFrames polls until at least n frames of type t were written.
func (c *FakeConn) WaitForFrames(t string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(c.FramesOfType(t)) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return len(c.FramesOfType(t)) >= n
}
