package gateway

// Registry maps room ids to the set of member connection ids. A room exists
// only while it has at least one member.
//
// Registry is not safe for concurrent use; Gateway serialises access.
type Registry struct {
	rooms map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// Join adds connID to roomID, creating the room if needed. It reports whether
// connID was newly added.
func (r *Registry) Join(roomID, connID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}
	return true
}

// Leave removes connID from roomID and deletes the room once it is empty.
// It reports whether connID was a member.
func (r *Registry) Leave(roomID, connID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// Members returns a copy of the member set of roomID in no particular order.
// An absent room yields an empty slice.
func (r *Registry) Members(roomID string) []string {
	members := r.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Contains reports whether connID is a member of roomID.
func (r *Registry) Contains(roomID, connID string) bool {
	_, ok := r.rooms[roomID][connID]
	return ok
}

// Has reports whether roomID currently exists.
func (r *Registry) Has(roomID string) bool {
	_, ok := r.rooms[roomID]
	return ok
}

// Size returns the member count of roomID.
func (r *Registry) Size(roomID string) int {
	return len(r.rooms[roomID])
}

// Rooms returns the ids of all rooms that currently have members.
func (r *Registry) Rooms() []string {
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// Len returns the number of rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}
