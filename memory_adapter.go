package sockhub

import (
	"sync"
)

// MemoryAdapter keeps room membership in process memory.
type MemoryAdapter struct {
	rooms       map[string]map[string]bool // room -> socket ids
	socketRooms map[string]map[string]bool // socket id -> rooms
	mu          sync.RWMutex
	namespace   *Namespace
}

// NewMemoryAdapter creates an adapter delivering to namespace's sockets.
func NewMemoryAdapter(namespace *Namespace) *MemoryAdapter {
	return &MemoryAdapter{
		rooms:       make(map[string]map[string]bool),
		socketRooms: make(map[string]map[string]bool),
		namespace:   namespace,
	}
}

// Add implements Adapter.
func (a *MemoryAdapter) Add(socketID, room string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rooms[room] == nil {
		a.rooms[room] = make(map[string]bool)
	}
	a.rooms[room][socketID] = true

	if a.socketRooms[socketID] == nil {
		a.socketRooms[socketID] = make(map[string]bool)
	}
	a.socketRooms[socketID][room] = true
}

// Remove implements Adapter.
func (a *MemoryAdapter) Remove(socketID, room string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeLocked(socketID, room)
}

// RemoveAll implements Adapter.
func (a *MemoryAdapter) RemoveAll(socketID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for room := range a.socketRooms[socketID] {
		a.removeLocked(socketID, room)
	}
}

func (a *MemoryAdapter) removeLocked(socketID, room string) {
	if members := a.rooms[room]; members != nil {
		delete(members, socketID)
		if len(members) == 0 {
			delete(a.rooms, room)
		}
	}
	if rooms := a.socketRooms[socketID]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(a.socketRooms, socketID)
		}
	}
}

// Sockets implements Adapter.
func (a *MemoryAdapter) Sockets(room string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return keys(a.rooms[room])
}

// SocketRooms implements Adapter.
func (a *MemoryAdapter) SocketRooms(socketID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return keys(a.socketRooms[socketID])
}

// Broadcast implements Adapter. Sockets that are gone or whose transport
// refuses the frame are skipped.
func (a *MemoryAdapter) Broadcast(frame []byte, opts BroadcastOptions) error {
	excluded := make(map[string]bool, len(opts.Except))
	for _, id := range opts.Except {
		excluded[id] = true
	}

	var candidates []string
	if len(opts.Rooms) == 0 {
		a.namespace.mu.RLock()
		candidates = make([]string, 0, len(a.namespace.sockets))
		for id := range a.namespace.sockets {
			candidates = append(candidates, id)
		}
		a.namespace.mu.RUnlock()
	} else {
		a.mu.RLock()
		for _, room := range opts.Rooms {
			for id := range a.rooms[room] {
				candidates = append(candidates, id)
			}
		}
		a.mu.RUnlock()
	}

	seen := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		if excluded[id] || seen[id] {
			continue
		}
		seen[id] = true

		s, ok := a.namespace.Socket(id)
		if !ok || !s.Connected() {
			continue
		}
		if err := s.client.write(frame); err != nil {
			a.namespace.log.Debug("broadcast delivery failed", "socket", id, "err", err)
		}
	}
	return nil
}

// Close implements Adapter.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rooms = make(map[string]map[string]bool)
	a.socketRooms = make(map[string]map[string]bool)
	return nil
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
