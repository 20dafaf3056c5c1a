package sockhub

import (
	"sync"
)

// AckHandler receives the arguments of an acknowledgement reply.
type AckHandler func(args ...any)

type ackTicket struct {
	fn AckHandler
	// inline tickets run on the transport goroutine instead of the
	// namespace queue.
	inline bool
}

// ackRegistry holds the pending acknowledgement tickets of one socket. A
// ticket is handed out at most once by take, and never after cancel.
type ackRegistry struct {
	mu      sync.Mutex
	next    int
	pending map[int]ackTicket
	closed  bool
}

// add stores t under a fresh id. It reports false once the registry is
// cancelled.
func (r *ackRegistry) add(t ackTicket) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	if r.pending == nil {
		r.pending = make(map[int]ackTicket)
	}
	id := r.next
	r.next++
	r.pending[id] = t
	return id, true
}

// take removes and returns the ticket for id.
func (r *ackRegistry) take(id int) (ackTicket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return t, ok
}

// cancel drops every pending ticket and refuses new ones. It returns the
// number of tickets dropped.
func (r *ackRegistry) cancel() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	r.pending = nil
	r.closed = true
	return n
}

func (r *ackRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// ackResponder answers one inbound ack request.
type ackResponder struct {
	once sync.Once
	send func(args []any)
}

func (a *ackResponder) reply(args []any) bool {
	sent := false
	a.once.Do(func() {
		a.send(args)
		sent = true
	})
	return sent
}
