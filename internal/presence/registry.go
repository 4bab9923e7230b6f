// Package presence tracks which sessions are connected to which rooms within
// this process. The registry is purely in-memory: it is rebuilt from scratch
// on process start and reflects only local connections. Cross-process
// presence is carried over the kv pub/sub channels instead.
package presence

import "sync"

// Registry is a concurrency-safe map of room id to the set of session ids
// currently joined from this process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uint]map[string]struct{})}
}

// Join records a session in a room. Joining twice is a no-op.
func (r *Registry) Join(roomID uint, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[roomID] = set
	}
	set[sessionID] = struct{}{}
}

// Leave removes a session from a room. Removing the last session drops the
// room entry entirely so empty rooms never accumulate.
func (r *Registry) Leave(roomID uint, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.rooms, roomID)
	}
}

// LeaveAll removes a session from every room it joined and returns the rooms
// it was removed from. Used on disconnect.
func (r *Registry) LeaveAll(sessionID string) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []uint
	for roomID, set := range r.rooms {
		if _, ok := set[sessionID]; !ok {
			continue
		}
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
		left = append(left, roomID)
	}
	return left
}

// CountOnline reports how many sessions are joined to a room.
func (r *Registry) CountOnline(roomID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// SessionsInRoom returns a snapshot of the session ids joined to a room.
func (r *Registry) SessionsInRoom(roomID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Rooms returns the ids of rooms with at least one joined session.
func (r *Registry) Rooms() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
