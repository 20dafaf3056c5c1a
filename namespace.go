package sockhub

import (
	"sync"

	"github.com/google/uuid"
)

// Namespace is an isolated scope with its own sockets, handlers, rooms and
// nickname table. Handlers, lifecycle hooks and ack callbacks of a namespace
// run one at a time on its dispatch queue.
type Namespace struct {
	name    string
	broker  *Broker
	adapter Adapter
	log     Logger
	queue   *dispatchQueue

	sockets map[string]*Socket
	mu      sync.RWMutex

	handlers     map[string]EventHandler
	onConnect    []func(*Socket)
	onDisconnect []func(*Socket, string)
	hooksMu      sync.RWMutex

	nicknames *NicknameRegistry
}

func newNamespace(name string, b *Broker) *Namespace {
	log := b.log.With("namespace", name)
	ns := &Namespace{
		name:      name,
		broker:    b,
		log:       log,
		queue:     newDispatchQueue(log),
		sockets:   make(map[string]*Socket),
		handlers:  make(map[string]EventHandler),
		nicknames: NewNicknameRegistry(),
	}
	ns.adapter = NewMemoryAdapter(ns)
	return ns
}

// Name returns the namespace path.
func (ns *Namespace) Name() string {
	return ns.name
}

// On registers the handler for event on every socket of the namespace,
// replacing any previous one.
func (ns *Namespace) On(event string, handler EventHandler) {
	ns.hooksMu.Lock()
	ns.handlers[event] = handler
	ns.hooksMu.Unlock()
}

// Off removes the namespace handler for event.
func (ns *Namespace) Off(event string) {
	ns.hooksMu.Lock()
	delete(ns.handlers, event)
	ns.hooksMu.Unlock()
}

// OnConnect adds a hook run for every socket joining the namespace.
func (ns *Namespace) OnConnect(fn func(*Socket)) {
	ns.hooksMu.Lock()
	ns.onConnect = append(ns.onConnect, fn)
	ns.hooksMu.Unlock()
}

// OnDisconnect adds a hook run after a socket has left the namespace and its
// nickname has been released.
func (ns *Namespace) OnDisconnect(fn func(s *Socket, reason string)) {
	ns.hooksMu.Lock()
	ns.onDisconnect = append(ns.onDisconnect, fn)
	ns.hooksMu.Unlock()
}

func (ns *Namespace) handler(event string) EventHandler {
	ns.hooksMu.RLock()
	defer ns.hooksMu.RUnlock()
	return ns.handlers[event]
}

// To returns an operator emitting to the given rooms. No rooms means the
// whole namespace.
func (ns *Namespace) To(rooms ...string) *BroadcastOperator {
	return &BroadcastOperator{namespace: ns, rooms: rooms}
}

// Except returns an operator emitting to the whole namespace but the given
// sockets.
func (ns *Namespace) Except(socketIDs ...string) *BroadcastOperator {
	return &BroadcastOperator{namespace: ns, except: socketIDs}
}

// local returns an operator over this node's sockets only.
func (ns *Namespace) local() *BroadcastOperator {
	return &BroadcastOperator{namespace: ns, local: true}
}

// Emit sends an event to every socket of the namespace.
func (ns *Namespace) Emit(event string, args ...any) error {
	return ns.To().Emit(event, args...)
}

// Send emits the message event to every socket of the namespace.
func (ns *Namespace) Send(args ...any) error {
	return ns.To().Emit(EventMessage, args...)
}

// Do runs fn on the namespace queue. It reports false after Broker.Close.
func (ns *Namespace) Do(fn func()) bool {
	return ns.queue.push(fn)
}

// Sockets returns the connected sockets.
func (ns *Namespace) Sockets() []*Socket {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	sockets := make([]*Socket, 0, len(ns.sockets))
	for _, s := range ns.sockets {
		sockets = append(sockets, s)
	}
	return sockets
}

// Socket looks up a connected socket by id.
func (ns *Namespace) Socket(id string) (*Socket, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	s, ok := ns.sockets[id]
	return s, ok
}

// Len returns the number of connected sockets.
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.sockets)
}

// Nicknames returns the namespace's nickname table.
func (ns *Namespace) Nicknames() *NicknameRegistry {
	return ns.nicknames
}

// ClaimNickname runs the nickname claim for s. When nick is held (or empty)
// reply gets true and nothing changes. Otherwise s takes nick, reply gets
// false, the rest of the namespace receives a connected announcement and
// every socket receives the updated nickname table. A nickname previously
// held by s is released. The table belongs to this node, so neither message
// goes out on the cluster bus. It must run on the namespace queue, i.e. from a
// handler.
func (ns *Namespace) ClaimNickname(s *Socket, nick string, reply func(taken bool)) {
	if nick == "" || !ns.nicknames.Claim(nick, s.id) {
		reply(true)
		return
	}
	if prev := s.setNickname(nick); prev != "" {
		ns.nicknames.Release(prev, s.id)
	}

	reply(false)
	_ = ns.local().Except(s.id).Emit(EventAnnouncement, Announcement{User: nick, Action: ActionConnected})
	_ = ns.local().Emit(EventNicknames, ns.nicknames.Snapshot())
}

func (ns *Namespace) connect(c *client) *Socket {
	s := newSocket(uuid.NewString(), c, ns)

	ns.mu.Lock()
	ns.sockets[s.id] = s
	ns.mu.Unlock()

	s.Join(s.id)
	if a, ok := c.conn.(authenticated); ok && a.Auth() != nil {
		s.Set(ClaimsKey, a.Auth())
	}

	if err := s.writePacket(&Packet{
		Type:      PacketTypeConnect,
		Namespace: ns.name,
		Data:      map[string]any{"sid": s.id},
	}); err != nil {
		ns.log.Warn("connect reply failed", "socket", s.id, "err", err)
	}
	ns.log.Debug("socket connected", "socket", s.id, "session", c.conn.ID())

	ns.queue.push(func() {
		if !s.Connected() {
			return
		}
		ns.hooksMu.RLock()
		hooks := ns.onConnect
		ns.hooksMu.RUnlock()
		for _, fn := range hooks {
			fn(s)
		}
	})
	return s
}

// disconnect removes s at once and drops its pending acks; the nickname
// release, announcements and disconnect hooks follow on the queue, ahead of
// any event queued later.
func (ns *Namespace) disconnect(s *Socket, reason string) {
	if !s.teardown() {
		return
	}

	ns.mu.Lock()
	delete(ns.sockets, s.id)
	ns.mu.Unlock()

	ns.adapter.RemoveAll(s.id)
	s.client.forget(ns.name, s)
	ns.log.Debug("socket disconnected", "socket", s.id, "reason", reason)

	ns.queue.push(func() {
		ns.releaseNickname(s)

		ns.hooksMu.RLock()
		hooks := ns.onDisconnect
		ns.hooksMu.RUnlock()
		for _, fn := range hooks {
			fn(s, reason)
		}
	})
}

func (ns *Namespace) releaseNickname(s *Socket) {
	nick := s.Nickname()
	if nick == "" || !ns.nicknames.Release(nick, s.id) {
		return
	}
	_ = ns.local().Except(s.id).Emit(EventAnnouncement, Announcement{User: nick, Action: ns.broker.disconnectAction()})
	_ = ns.local().Except(s.id).Emit(EventNicknames, ns.nicknames.Snapshot())
}

// dispatch queues the handler call for an inbound event. Events for sockets
// that have disconnected by the time the task runs are dropped.
func (ns *Namespace) dispatch(s *Socket, event string, args []any, ackID *int) {
	var ack *ackResponder
	if ackID != nil {
		id := *ackID
		ack = &ackResponder{send: func(reply []any) {
			if err := s.writePacket(ackPacket(ns.name, id, reply)); err != nil {
				ns.log.Debug("ack reply failed", "socket", s.id, "ack", id, "err", err)
			}
		}}
	}

	ns.queue.push(func() {
		if !s.Connected() {
			return
		}
		h := s.handler(event)
		if h == nil {
			h = ns.handler(event)
		}
		if h == nil {
			ns.log.Debug("ignoring unhandled event", "socket", s.id, "event", event)
			return
		}
		h(&Event{Name: event, Args: args, Socket: s, ack: ack})
	})
}

// BroadcastOperator emits to a selection of a namespace's sockets.
type BroadcastOperator struct {
	namespace *Namespace
	rooms     []string
	except    []string
	local     bool
}

// To adds rooms to the selection.
func (b *BroadcastOperator) To(rooms ...string) *BroadcastOperator {
	b.rooms = append(b.rooms, rooms...)
	return b
}

// Except excludes sockets from the selection.
func (b *BroadcastOperator) Except(socketIDs ...string) *BroadcastOperator {
	b.except = append(b.except, socketIDs...)
	return b
}

// Emit sends an event to every selected socket, at most once each, and
// publishes it on the cluster bus when one is configured.
func (b *BroadcastOperator) Emit(event string, args ...any) error {
	ns := b.namespace
	frame, err := eventPacket(ns.name, event, args, nil).Encode()
	if err != nil {
		return err
	}
	opts := BroadcastOptions{Rooms: b.rooms, Except: b.except}
	if !b.local {
		ns.broker.publish(ns.name, opts, frame)
	}
	return ns.adapter.Broadcast(frame, opts)
}

// Send emits the message event to every selected socket.
func (b *BroadcastOperator) Send(args ...any) error {
	return b.Emit(EventMessage, args...)
}
