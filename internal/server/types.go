// Package server defines the wire envelope and utility helpers shared by the
// client, hub and dispatcher.
package server

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrSendBufferFull is returned by Client.Send when the outbound queue is
	// saturated. The client is closed.
	ErrSendBufferFull = errors.New("client send buffer full")

	// ErrClientClosed is returned by Client.Send after the connection ended.
	ErrClientClosed = errors.New("client closed")

	// ErrHubClosed is returned when registering with a hub that has shut down.
	ErrHubClosed = errors.New("hub closed")
)

// inboundFrame is the JSON envelope clients send. ID is echoed on the ack so
// clients can match replies to requests.
type inboundFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
