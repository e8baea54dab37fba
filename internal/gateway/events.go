package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Inbound event names.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventLeaveRoom   = "leave_room"
)

// Outbound event names.
const (
	EventUserJoined = "user_joined"
	EventNewMessage = "new_message"
	EventUserLeft   = "user_left"
	EventAck        = "ack"
	EventError      = "error"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	// ErrMalformedPayload is returned when an inbound payload is missing a
	// required field. No state is changed.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrIdentityMismatch is returned when a payload names a user other than
	// the one bound to the connection.
	ErrIdentityMismatch = errors.New("payload userId does not match the connection identity")

	// ErrConnectionClosed is returned for events from a connection that was
	// never connected or has already been disconnected.
	ErrConnectionClosed = errors.New("connection is not registered")
)

// JoinRoomPayload is the body of a join_room event.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Validate checks the fields the gateway cannot default.
func (p JoinRoomPayload) Validate() error {
	if strings.TrimSpace(p.RoomID) == "" {
		return fmt.Errorf("%w: roomId is required", ErrMalformedPayload)
	}
	return nil
}

// SendMessagePayload is the body of a send_message event.
type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Validate checks the fields the gateway cannot default.
func (p SendMessagePayload) Validate() error {
	if strings.TrimSpace(p.RoomID) == "" {
		return fmt.Errorf("%w: roomId is required", ErrMalformedPayload)
	}
	if p.Message == "" {
		return fmt.Errorf("%w: message is required", ErrMalformedPayload)
	}
	return nil
}

// Ack is the synchronous reply returned to the caller of an event.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Presence is the payload of user_joined and user_left broadcasts.
type Presence struct {
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage is the payload of a new_message broadcast.
type ChatMessage struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Frame is the JSON envelope written to clients.
type Frame struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// EncodeFrame marshals an outbound envelope.
func EncodeFrame(event, id string, data any) ([]byte, error) {
	b, err := json.Marshal(Frame{Event: event, ID: id, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return b, nil
}

func joinedText(userID string) string { return userID + " joined the room" }

func leftText(userID string) string { return userID + " left the room" }

func disconnectedText(userID string) string { return userID + " disconnected" }
