// Package testhelpers provides common utilities for testing the room chat
// server over real WebSocket connections.
//
// Frames may arrive coalesced into one websocket message separated by
// newlines; Client splits them and hands them out one at a time.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header sent by ConnectWebSocket. It is in the
// server's default allow-list.
const TestOrigin = "http://localhost:8080"

// Frame is a decoded outbound envelope.
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame body into v.
func (f Frame) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("Failed to decode %s frame data %s: %v", f.Event, f.Data, err)
	}
}

// WebSocketURL turns an httptest server URL into a websocket URL for path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// ConnectWebSocket dials url with the test origin and optional extra headers.
func ConnectWebSocket(url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	for k, v := range header {
		headers[k] = v
	}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Client wraps a test websocket connection.
type Client struct {
	t       *testing.T
	Conn    *websocket.Conn
	pending []Frame
}

// Dial connects to url and fails the test on error. The connection is closed
// at test cleanup.
func Dial(t *testing.T, url string, header http.Header) *Client {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, header)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &Client{t: t, Conn: conn}
}

// Emit sends an inbound event.
func (c *Client) Emit(event, id string, data any) {
	c.t.Helper()
	frame := map[string]any{"event": event}
	if id != "" {
		frame["id"] = id
	}
	if data != nil {
		frame["data"] = data
	}
	if err := c.Conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// EmitRaw sends raw bytes as a text message.
func (c *Client) EmitRaw(data []byte) {
	c.t.Helper()
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("Failed to send raw message: %v", err)
	}
}

// Next returns the next frame, failing the test if none arrives within timeout.
func (c *Client) Next(timeout time.Duration) Frame {
	c.t.Helper()
	f, ok := c.next(timeout)
	if !ok {
		c.t.Fatalf("Timed out after %s waiting for a frame", timeout)
	}
	return f
}

// Expect returns the next frame and fails unless it is event.
func (c *Client) Expect(event string, timeout time.Duration) Frame {
	c.t.Helper()
	f := c.Next(timeout)
	if f.Event != event {
		c.t.Fatalf("Expected %s frame, got %s: %s", event, f.Event, f.Data)
	}
	return f
}

// ExpectNone fails if any frame arrives within wait. A read that times out
// leaves the gorilla connection unusable, so call it last.
func (c *Client) ExpectNone(wait time.Duration) {
	c.t.Helper()
	if f, ok := c.next(wait); ok {
		c.t.Fatalf("Expected no frame, got %s: %s", f.Event, f.Data)
	}
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() {
	_ = c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Conn.Close()
}

func (c *Client) next(timeout time.Duration) (Frame, bool) {
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f, true
	}

	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Frame{}, false
	}
	_, data, err := c.Conn.ReadMessage()
	if err != nil {
		return Frame{}, false
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			c.t.Fatalf("Invalid frame %q: %v", line, err)
		}
		c.pending = append(c.pending, f)
	}
	return c.next(timeout)
}
