package gateway

// Membership binds one connection to its current room and user.
type Membership struct {
	ConnID string `json:"connId"`
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// Tracker is the inverse index of Registry: connection id to Membership.
// A connection has at most one entry.
//
// Tracker is not safe for concurrent use; Gateway serialises access.
type Tracker struct {
	entries map[string]Membership
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]Membership)}
}

// SetRoom records roomID as the current room of connID, replacing any prior
// entry. Leaving the prior room in the Registry is the caller's job.
func (t *Tracker) SetRoom(connID, userID, roomID string) {
	t.entries[connID] = Membership{ConnID: connID, UserID: userID, RoomID: roomID}
}

// CurrentRoom returns the membership of connID, if any.
func (t *Tracker) CurrentRoom(connID string) (Membership, bool) {
	m, ok := t.entries[connID]
	return m, ok
}

// Clear removes connID and returns the entry it held. The boolean is false
// when there was nothing to clear, which makes Clear the arbiter between
// racing leave and disconnect: only the caller that sees true broadcasts.
func (t *Tracker) Clear(connID string) (Membership, bool) {
	m, ok := t.entries[connID]
	if ok {
		delete(t.entries, connID)
	}
	return m, ok
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	return len(t.entries)
}
