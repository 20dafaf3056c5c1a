package sockhub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrDisconnected is returned by emissions on a socket that has left its
// namespace.
var ErrDisconnected = errors.New("sockhub: socket disconnected")

// ClaimsKey is the socket data key holding the handshake claims, an
// *auth.Claims when the broker runs WithJWT.
const ClaimsKey = "claims"

// Socket is one client's membership in one namespace.
type Socket struct {
	id        string
	client    *client
	namespace *Namespace

	handlers   map[string]EventHandler
	handlersMu sync.RWMutex

	acks ackRegistry

	rooms   map[string]bool
	roomsMu sync.RWMutex

	nickname string
	nickMu   sync.RWMutex

	data sync.Map

	connected atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newSocket(id string, c *client, ns *Namespace) *Socket {
	s := &Socket{
		id:        id,
		client:    c,
		namespace: ns,
		handlers:  make(map[string]EventHandler),
		rooms:     make(map[string]bool),
		done:      make(chan struct{}),
	}
	s.connected.Store(true)
	return s
}

// ID returns the socket id.
func (s *Socket) ID() string {
	return s.id
}

// SessionID returns the id of the transport connection carrying the socket.
func (s *Socket) SessionID() string {
	return s.client.conn.ID()
}

// Namespace returns the namespace the socket belongs to.
func (s *Socket) Namespace() *Namespace {
	return s.namespace
}

// Nickname returns the nickname held by the socket, or "".
func (s *Socket) Nickname() string {
	s.nickMu.RLock()
	defer s.nickMu.RUnlock()
	return s.nickname
}

func (s *Socket) setNickname(nick string) (prev string) {
	s.nickMu.Lock()
	defer s.nickMu.Unlock()
	prev, s.nickname = s.nickname, nick
	return prev
}

// Connected reports whether the socket is still in its namespace.
func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Done is closed when the socket leaves its namespace.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Emit sends an event to the client.
func (s *Socket) Emit(event string, args ...any) error {
	return s.writePacket(eventPacket(s.namespace.name, event, args, nil))
}

// Send emits the reserved message event.
func (s *Socket) Send(args ...any) error {
	return s.Emit(EventMessage, args...)
}

// EmitWithAck sends an event and calls onReply, on the namespace queue, when
// the client acknowledges it. onReply runs at most once and never after the
// socket has disconnected.
func (s *Socket) EmitWithAck(event string, onReply AckHandler, args ...any) error {
	_, err := s.emitWithAck(event, ackTicket{fn: onReply}, args)
	return err
}

// Request emits an event with an acknowledgement and waits for the reply. It
// must not be called from a handler of the same namespace that would need to
// process the reply.
func (s *Socket) Request(ctx context.Context, event string, args ...any) ([]any, error) {
	reply := make(chan []any, 1)
	id, err := s.emitWithAck(event, ackTicket{
		fn:     func(a ...any) { reply <- a },
		inline: true,
	}, args)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r, nil
	case <-s.done:
		return nil, ErrDisconnected
	case <-ctx.Done():
		s.acks.take(id)
		return nil, ctx.Err()
	}
}

func (s *Socket) emitWithAck(event string, t ackTicket, args []any) (int, error) {
	id, ok := s.acks.add(t)
	if !ok {
		return 0, ErrDisconnected
	}
	if err := s.writePacket(eventPacket(s.namespace.name, event, args, &id)); err != nil {
		s.acks.take(id)
		return 0, err
	}
	return id, nil
}

// On registers a handler for this socket only. It takes precedence over the
// namespace handler for the same event.
func (s *Socket) On(event string, handler EventHandler) {
	s.handlersMu.Lock()
	s.handlers[event] = handler
	s.handlersMu.Unlock()
}

// Off removes the socket-level handler for event.
func (s *Socket) Off(event string) {
	s.handlersMu.Lock()
	delete(s.handlers, event)
	s.handlersMu.Unlock()
}

func (s *Socket) handler(event string) EventHandler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[event]
}

// Broadcast returns an operator targeting every other socket of the
// namespace.
func (s *Socket) Broadcast() *BroadcastOperator {
	return s.namespace.Except(s.id)
}

// Join adds the socket to a room.
func (s *Socket) Join(room string) {
	s.roomsMu.Lock()
	s.rooms[room] = true
	s.roomsMu.Unlock()

	s.namespace.adapter.Add(s.id, room)
}

// Leave removes the socket from a room.
func (s *Socket) Leave(room string) {
	s.roomsMu.Lock()
	delete(s.rooms, room)
	s.roomsMu.Unlock()

	s.namespace.adapter.Remove(s.id, room)
}

// Rooms returns the rooms the socket is in, including its own id room.
func (s *Socket) Rooms() []string {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Set stores a socket-scoped value.
func (s *Socket) Set(key string, value any) {
	s.data.Store(key, value)
}

// Get loads a socket-scoped value.
func (s *Socket) Get(key string) (any, bool) {
	return s.data.Load(key)
}

// Disconnect removes the socket from its namespace. With closeConn the whole
// transport connection is closed too.
func (s *Socket) Disconnect(closeConn bool) {
	if closeConn {
		s.client.conn.Close("server disconnect")
		return
	}
	_ = s.writePacket(&Packet{Type: PacketTypeDisconnect, Namespace: s.namespace.name})
	s.namespace.disconnect(s, "server namespace disconnect")
}

func (s *Socket) writePacket(p *Packet) error {
	if !s.Connected() {
		return ErrDisconnected
	}
	frame, err := p.Encode()
	if err != nil {
		return err
	}
	return s.client.write(frame)
}

// handleAck resolves the ticket for id. Replies without a ticket are
// dropped.
func (s *Socket) handleAck(id int, args []any) {
	t, ok := s.acks.take(id)
	if !ok {
		s.namespace.log.Debug("dropping ack without ticket", "socket", s.id, "ack", id)
		return
	}
	s.resolve(t, args)
}

// resolve calls a taken ticket unless the socket disconnected in between.
func (s *Socket) resolve(t ackTicket, args []any) {
	if t.inline {
		if s.Connected() {
			t.fn(args...)
		}
		return
	}
	s.namespace.queue.push(func() {
		if s.Connected() {
			t.fn(args...)
		}
	})
}

// teardown marks the socket disconnected and drops its pending tickets. Only
// the first call reports true.
func (s *Socket) teardown() bool {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.connected.Store(false)
		s.acks.cancel()
		close(s.done)
	})
	return first
}
