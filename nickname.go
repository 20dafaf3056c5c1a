package sockhub

import (
	"maps"
	"sync"
)

// NicknameRegistry maps nicknames to the socket holding them. Each nickname
// has at most one holder.
type NicknameRegistry struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewNicknameRegistry returns an empty registry.
func NewNicknameRegistry() *NicknameRegistry {
	return &NicknameRegistry{owners: make(map[string]string)}
}

// Claim assigns nick to socketID if nobody holds it. The check and the insert
// are one step. It reports whether the claim succeeded.
func (r *NicknameRegistry) Claim(nick, socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.owners[nick]; taken {
		return false
	}
	r.owners[nick] = socketID
	return true
}

// Release removes nick if socketID holds it.
func (r *NicknameRegistry) Release(nick, socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[nick]; !ok || owner != socketID {
		return false
	}
	delete(r.owners, nick)
	return true
}

// Owner returns the socket id holding nick.
func (r *NicknameRegistry) Owner(nick string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.owners[nick]
	return id, ok
}

// Snapshot returns a copy of the nickname table.
func (r *NicknameRegistry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.owners)
}

// Len returns the number of held nicknames.
func (r *NicknameRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
