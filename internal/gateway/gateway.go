package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is one live client session as seen by the gateway. The transport owns
// it; the gateway only keeps a reference between Connect and Disconnect.
//
// Send must not block and must deliver frames in the order it receives them.
type Conn interface {
	ID() string
	Send(frame []byte) error
}

// Stats is a point-in-time summary of gateway state.
type Stats struct {
	Rooms            int   `json:"rooms"`
	Connections      int   `json:"connections"`
	Joined           int   `json:"joined"`
	DeliveryFailures int64 `json:"delivery_failures"`
}

type session struct {
	conn   Conn
	userID string
}

// Gateway coordinates join, leave, message and disconnect events across all
// connections. Registry, Tracker and the session table are guarded by mu as
// one unit.
type Gateway struct {
	mu       sync.Mutex
	registry *Registry
	tracker  *Tracker
	sessions map[string]session

	logger   *slog.Logger
	now      func() time.Time
	strict   bool
	failures atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides the source of broadcast timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithStrictRouting drops messages whose roomId is not the sender's current
// room. By default messages are routed by the roomId they carry.
func WithStrictRouting(strict bool) Option {
	return func(g *Gateway) { g.strict = strict }
}

// New returns an empty gateway.
func New(logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		registry: NewRegistry(),
		tracker:  NewTracker(),
		sessions: make(map[string]session),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect registers a live connection. userID is the identity bound to the
// transport session; empty means the payload identity is trusted.
func (g *Gateway) Connect(c Conn, userID string) {
	g.mu.Lock()
	if _, exists := g.sessions[c.ID()]; exists {
		g.logger.Warn("replacing session with duplicate connection id", "conn_id", c.ID())
	}
	g.sessions[c.ID()] = session{conn: c, userID: userID}
	total := len(g.sessions)
	g.mu.Unlock()

	g.logger.Debug("connection registered", "conn_id", c.ID(), "user_id", userID, "connections", total)
}

// JoinRoom moves the connection into payload.RoomID, leaving any other room
// first. Members of the prior room get user_left; every member of the new
// room, the joiner included, gets user_joined.
func (g *Gateway) JoinRoom(connID string, payload JoinRoomPayload) (Ack, error) {
	if err := payload.Validate(); err != nil {
		return Ack{}, err
	}

	g.mu.Lock()
	s, ok := g.sessions[connID]
	if !ok {
		g.mu.Unlock()
		return Ack{}, ErrConnectionClosed
	}
	userID, err := claimIdentity(s.userID, payload.UserID, "")
	if err != nil {
		g.mu.Unlock()
		return Ack{}, err
	}

	var (
		prior      Membership
		priorPeers []Conn
	)
	if m, joined := g.tracker.CurrentRoom(connID); joined && m.RoomID != payload.RoomID {
		prior = m
		g.registry.Leave(m.RoomID, connID)
		priorPeers = g.recipientsLocked(m.RoomID)
	}
	g.registry.Join(payload.RoomID, connID)
	g.tracker.SetRoom(connID, userID, payload.RoomID)
	peers := g.recipientsLocked(payload.RoomID)
	ts := g.timestamp()
	g.mu.Unlock()

	if prior.RoomID != "" {
		g.logger.Info("user switched rooms", "user_id", prior.UserID, "from_room", prior.RoomID, "room_id", payload.RoomID)
		g.broadcast(prior.RoomID, EventUserLeft, priorPeers, Presence{
			UserID:    prior.UserID,
			Message:   leftText(prior.UserID),
			Timestamp: ts,
		})
	}

	g.logger.Info("user joined room", "user_id", userID, "room_id", payload.RoomID, "conn_id", connID, "members", len(peers))
	g.broadcast(payload.RoomID, EventUserJoined, peers, Presence{
		UserID:    userID,
		Message:   joinedText(userID),
		Timestamp: ts,
	})

	return Ack{Status: StatusOK, Message: fmt.Sprintf("Joined room %s", payload.RoomID)}, nil
}

// SendMessage stamps the message and broadcasts it to every member of
// payload.RoomID. A connection that is not in any room is ignored and gets no
// reply (nil Ack, nil error).
func (g *Gateway) SendMessage(connID string, payload SendMessagePayload) (*Ack, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	s, ok := g.sessions[connID]
	if !ok {
		g.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	m, joined := g.tracker.CurrentRoom(connID)
	if !joined {
		g.mu.Unlock()
		g.logger.Debug("dropping message from connection outside any room", "conn_id", connID, "room_id", payload.RoomID)
		return nil, nil
	}
	userID, err := claimIdentity(s.userID, payload.UserID, m.UserID)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if g.strict && payload.RoomID != m.RoomID {
		g.mu.Unlock()
		g.logger.Debug("dropping message for room the sender is not in", "conn_id", connID, "room_id", payload.RoomID, "current_room", m.RoomID)
		return nil, nil
	}
	peers := g.recipientsLocked(payload.RoomID)
	ts := g.timestamp()
	g.mu.Unlock()

	g.logger.Debug("user sent message", "user_id", userID, "room_id", payload.RoomID, "recipients", len(peers))
	g.broadcast(payload.RoomID, EventNewMessage, peers, ChatMessage{
		RoomID:    payload.RoomID,
		UserID:    userID,
		Message:   payload.Message,
		Timestamp: ts,
	})

	return &Ack{Status: StatusOK}, nil
}

// LeaveRoom removes the connection from its current room and tells the
// remaining members. It is a no-op with no reply when the connection is not
// in a room.
func (g *Gateway) LeaveRoom(connID string) (*Ack, error) {
	g.mu.Lock()
	if _, ok := g.sessions[connID]; !ok {
		g.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	m, peers, ok := g.releaseLocked(connID)
	ts := g.timestamp()
	g.mu.Unlock()

	if !ok {
		return nil, nil
	}

	g.logger.Info("user left room", "user_id", m.UserID, "room_id", m.RoomID, "conn_id", connID, "members", len(peers))
	g.broadcast(m.RoomID, EventUserLeft, peers, Presence{
		UserID:    m.UserID,
		Message:   leftText(m.UserID),
		Timestamp: ts,
	})

	return &Ack{Status: StatusOK, Message: fmt.Sprintf("Left room %s", m.RoomID)}, nil
}

// Disconnect is the transport close hook. It performs the same cleanup as
// LeaveRoom and then forgets the connection; later events for connID return
// ErrConnectionClosed. Calling it again is a no-op.
func (g *Gateway) Disconnect(connID string) {
	g.mu.Lock()
	if _, ok := g.sessions[connID]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.sessions, connID)
	m, peers, ok := g.releaseLocked(connID)
	ts := g.timestamp()
	g.mu.Unlock()

	if !ok {
		g.logger.Debug("connection closed outside any room", "conn_id", connID)
		return
	}

	g.logger.Info("user disconnected", "user_id", m.UserID, "room_id", m.RoomID, "conn_id", connID, "members", len(peers))
	g.broadcast(m.RoomID, EventUserLeft, peers, Presence{
		UserID:    m.UserID,
		Message:   disconnectedText(m.UserID),
		Timestamp: ts,
	})
}

// Members returns the connection ids in roomID.
func (g *Gateway) Members(roomID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.Members(roomID)
}

// CurrentRoom returns the membership of connID, if any.
func (g *Gateway) CurrentRoom(connID string) (Membership, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tracker.CurrentRoom(connID)
}

// Rooms returns the ids of rooms that currently have members.
func (g *Gateway) Rooms() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.Rooms()
}

// Stats returns counts of rooms, connections and failed deliveries.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Rooms:            g.registry.Len(),
		Connections:      len(g.sessions),
		Joined:           g.tracker.Len(),
		DeliveryFailures: g.failures.Load(),
	}
}

// releaseLocked clears connID from both indexes and returns the remaining
// members of the room it was in. Caller holds mu.
func (g *Gateway) releaseLocked(connID string) (Membership, []Conn, bool) {
	m, ok := g.tracker.Clear(connID)
	if !ok {
		return Membership{}, nil, false
	}
	g.registry.Leave(m.RoomID, connID)
	return m, g.recipientsLocked(m.RoomID), true
}

// recipientsLocked snapshots the connections in roomID. Caller holds mu.
func (g *Gateway) recipientsLocked(roomID string) []Conn {
	ids := g.registry.Members(roomID)
	conns := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if s, ok := g.sessions[id]; ok {
			conns = append(conns, s.conn)
		}
	}
	return conns
}

func (g *Gateway) timestamp() time.Time {
	return g.now().UTC()
}

// broadcast writes one frame to each target. A failing recipient is logged
// and counted and never stops delivery to the others.
func (g *Gateway) broadcast(roomID, event string, targets []Conn, data any) {
	if len(targets) == 0 {
		return
	}
	frame, err := EncodeFrame(event, "", data)
	if err != nil {
		g.logger.Error("failed to encode broadcast", "event", event, "room_id", roomID, "error", err)
		return
	}
	for _, c := range targets {
		if err := deliver(c, frame); err != nil {
			g.failures.Add(1)
			g.logger.Warn("broadcast delivery failed", "event", event, "room_id", roomID, "conn_id", c.ID(), "error", err)
		}
	}
}

func deliver(c Conn, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return c.Send(frame)
}

// claimIdentity picks the user id for an event. A bound identity wins and a
// disagreeing payload is rejected; without one the payload is trusted and
// fallback fills an empty claim.
func claimIdentity(bound, claimed, fallback string) (string, error) {
	if bound != "" {
		if claimed != "" && claimed != bound {
			return "", fmt.Errorf("%w: got %q", ErrIdentityMismatch, claimed)
		}
		return bound, nil
	}
	if claimed != "" {
		return claimed, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("%w: userId is required", ErrMalformedPayload)
}
