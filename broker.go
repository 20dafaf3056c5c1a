package sockhub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ramory-l/sockhub/auth"
	"github.com/ramory-l/sockhub/bus"
	"github.com/ramory-l/sockhub/engineio"
)

// ErrUnknownNamespace is returned for operations on a namespace that was
// never created.
var ErrUnknownNamespace = errors.New("sockhub: unknown namespace")

const outboxSize = 1024

// Broker owns the namespaces of a process and routes transport traffic to
// them.
type Broker struct {
	config *Config
	log    Logger
	slog   *slog.Logger
	eio    *engineio.Server

	namespaces map[string]*Namespace
	nsMu       sync.RWMutex

	clients  sync.Map // session id -> *client
	sessions atomic.Int64

	validator   auth.JWTValidator
	checkOrigin func(*http.Request) bool

	bus        bus.Bus
	nodeID     string
	outbox     chan bus.Message
	publishing atomic.Bool

	started   time.Time
	closeOnce sync.Once
	done      chan struct{}
}

// NewBroker creates a broker with the default namespace. A nil config uses
// DefaultConfig.
func NewBroker(config *Config, opts ...Option) *Broker {
	if config == nil {
		config = DefaultConfig()
	}

	b := &Broker{
		config:     config,
		slog:       slog.Default(),
		namespaces: make(map[string]*Namespace),
		nodeID:     config.NodeID,
		started:    time.Now(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = &slogLogger{l: b.slog}
	}
	if b.nodeID == "" {
		b.nodeID = uuid.NewString()
	}
	if b.bus != nil {
		b.outbox = make(chan bus.Message, outboxSize)
	}

	eioConfig := &engineio.Config{
		PingInterval: config.PingInterval,
		PingTimeout:  config.PingTimeout,
		MaxPayload:   config.MaxPayload,
		WriteQueue:   config.WriteQueue,
		CheckOrigin:  b.checkOrigin,
	}
	if b.validator != nil {
		eioConfig.Authorize = auth.Authorize(b.validator)
	}
	b.eio = engineio.NewServer(eioConfig, b.slog)
	b.eio.OnConnect(b.handleSession)

	b.Of("/")
	return b
}

// NodeID identifies the broker on the cluster bus.
func (b *Broker) NodeID() string {
	return b.nodeID
}

// Of returns the namespace for path, creating it on first use.
func (b *Broker) Of(path string) *Namespace {
	path = normalizeNamespace(path)

	b.nsMu.RLock()
	ns, ok := b.namespaces[path]
	b.nsMu.RUnlock()
	if ok {
		return ns
	}

	b.nsMu.Lock()
	defer b.nsMu.Unlock()
	if ns, ok := b.namespaces[path]; ok {
		return ns
	}
	ns = newNamespace(path, b)
	b.namespaces[path] = ns
	return ns
}

func (b *Broker) lookup(path string) (*Namespace, bool) {
	b.nsMu.RLock()
	defer b.nsMu.RUnlock()
	ns, ok := b.namespaces[normalizeNamespace(path)]
	return ns, ok
}

// Namespaces returns the sorted paths of all namespaces.
func (b *Broker) Namespaces() []string {
	b.nsMu.RLock()
	defer b.nsMu.RUnlock()
	paths := make([]string, 0, len(b.namespaces))
	for p := range b.namespaces {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// OnConnect adds a connect hook to the default namespace.
func (b *Broker) OnConnect(fn func(*Socket)) {
	b.Of("/").OnConnect(fn)
}

// Attach registers a transport connection. Its frames are then passed to
// Deliver and its end to Detach.
func (b *Broker) Attach(conn Conn) {
	b.clients.Store(conn.ID(), newClient(conn, b))
	b.sessions.Add(1)
}

// Deliver hands an inbound Socket.IO packet from connection connID to the
// broker. Frames of unknown connections are ignored.
func (b *Broker) Deliver(connID string, frame []byte) {
	v, ok := b.clients.Load(connID)
	if !ok {
		return
	}
	v.(*client).handleFrame(frame)
}

// Detach disconnects every socket of connection connID.
func (b *Broker) Detach(connID, reason string) {
	v, ok := b.clients.LoadAndDelete(connID)
	if !ok {
		return
	}
	b.sessions.Add(-1)
	v.(*client).close(reason)
}

// RouteInbound queues event for the socket socketID of namespace nsp. When
// ackID is set the handler's Event.Ack replies to that id. Unknown
// namespaces, sockets and events are ignored.
func (b *Broker) RouteInbound(socketID, nsp, event string, args []any, ackID *int) {
	ns, ok := b.lookup(nsp)
	if !ok {
		return
	}
	s, ok := ns.Socket(socketID)
	if !ok {
		return
	}
	ns.dispatch(s, event, args, ackID)
}

// Broadcast emits event to every socket of nsp except exceptID.
func (b *Broker) Broadcast(nsp, event, exceptID string, args ...any) error {
	ns, ok := b.lookup(nsp)
	if !ok {
		return ErrUnknownNamespace
	}
	return ns.Except(exceptID).Emit(event, args...)
}

// EmitToAll emits event to every socket of nsp.
func (b *Broker) EmitToAll(nsp, event string, args ...any) error {
	ns, ok := b.lookup(nsp)
	if !ok {
		return ErrUnknownNamespace
	}
	return ns.Emit(event, args...)
}

// CrossNamespaceSend queues a plain message to every socket of nsp on that
// namespace's own queue.
func (b *Broker) CrossNamespaceSend(nsp string, args ...any) {
	ns := b.Of(nsp)
	ns.queue.push(func() {
		if err := ns.Send(args...); err != nil {
			ns.log.Warn("cross-namespace send failed", "err", err)
		}
	})
}

// Emit broadcasts to every socket of the default namespace.
func (b *Broker) Emit(event string, args ...any) error {
	return b.Of("/").Emit(event, args...)
}

// To returns a BroadcastOperator for the default namespace.
func (b *Broker) To(rooms ...string) *BroadcastOperator {
	return b.Of("/").To(rooms...)
}

// ServeHTTP serves the Engine.IO endpoint under /socket.io/.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/socket.io/") {
		http.NotFound(w, r)
		return
	}
	b.eio.ServeHTTP(w, r)
}

func (b *Broker) handleSession(session *engineio.Session) {
	b.Attach(session)
	session.OnMessage(func(data []byte) {
		b.Deliver(session.ID(), data)
	})
	session.OnClose(func(reason string) {
		b.Detach(session.ID(), reason)
	})
}

// Start subscribes to the cluster bus when one is configured. Broadcasts
// are published from then on.
func (b *Broker) Start(ctx context.Context) error {
	if b.bus == nil {
		return nil
	}
	if err := b.bus.Subscribe(ctx, b.receive); err != nil {
		return err
	}
	go b.publishLoop()
	b.publishing.Store(true)
	b.log.Info("cluster bus started", "node", b.nodeID)
	return nil
}

func (b *Broker) publish(nsp string, opts BroadcastOptions, frame []byte) {
	if !b.publishing.Load() {
		return
	}
	m := bus.Message{
		Node:      b.nodeID,
		Namespace: nsp,
		Rooms:     opts.Rooms,
		Except:    opts.Except,
		Frame:     frame,
	}
	select {
	case b.outbox <- m:
	case <-b.done:
	default:
		b.log.Warn("cluster outbox full, dropping broadcast", "namespace", nsp)
	}
}

func (b *Broker) publishLoop() {
	for {
		select {
		case m := <-b.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.bus.Publish(ctx, m); err != nil {
				b.log.Error("cluster publish failed", "namespace", m.Namespace, "err", err)
			}
			cancel()
		case <-b.done:
			return
		}
	}
}

// receive delivers a broadcast from another node to local sockets. Messages
// for namespaces this node never opened are dropped.
func (b *Broker) receive(m bus.Message) {
	if m.Node == b.nodeID {
		return
	}
	ns, ok := b.lookup(m.Namespace)
	if !ok {
		b.log.Debug("dropping cluster message for unknown namespace", "namespace", m.Namespace, "node", m.Node)
		return
	}
	opts := BroadcastOptions{Rooms: m.Rooms, Except: m.Except}
	ns.queue.push(func() {
		_ = ns.adapter.Broadcast(m.Frame, opts)
	})
}

// Close closes all sessions, namespace queues and the cluster bus.
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.eio.Close()
		b.clients.Range(func(key, value any) bool {
			value.(*client).conn.Close("server shutdown")
			b.Detach(key.(string), "server shutdown")
			return true
		})

		close(b.done)

		b.nsMu.RLock()
		for _, ns := range b.namespaces {
			ns.queue.close()
			_ = ns.adapter.Close()
		}
		b.nsMu.RUnlock()

		if b.bus != nil {
			err = b.bus.Close()
		}
	})
	return err
}

func (b *Broker) disconnectAction() string {
	if b.config.LegacyAnnouncements {
		return legacyActionDisconnected
	}
	return ActionDisconnected
}

func normalizeNamespace(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
