package sockhub

import (
	"sync"
)

// Conn is the transport side of a client session. Write must not block; it
// queues one encoded packet for delivery.
type Conn interface {
	ID() string
	Write(frame []byte) error
	Close(reason string)
}

// authenticated is implemented by connections that passed a handshake check.
type authenticated interface {
	Auth() any
}

// client multiplexes the namespaces joined over one Conn.
type client struct {
	conn   Conn
	broker *Broker
	log    Logger

	mu      sync.Mutex
	sockets map[string]*Socket // by namespace
	closed  bool
}

func newClient(conn Conn, b *Broker) *client {
	return &client{
		conn:    conn,
		broker:  b,
		log:     b.log.With("session", conn.ID()),
		sockets: make(map[string]*Socket),
	}
}

func (c *client) write(frame []byte) error {
	return c.conn.Write(frame)
}

func (c *client) handleFrame(frame []byte) {
	p, err := DecodePacket(frame)
	if err != nil {
		c.log.Debug("dropping bad packet", "err", err)
		return
	}

	switch p.Type {
	case PacketTypeConnect:
		c.connect(p.Namespace)
	case PacketTypeDisconnect:
		if s := c.socket(p.Namespace); s != nil {
			s.namespace.disconnect(s, "client namespace disconnect")
		}
	case PacketTypeEvent:
		s := c.socket(p.Namespace)
		if s == nil {
			return
		}
		name, args, err := p.event()
		if err != nil {
			c.log.Debug("dropping event", "namespace", p.Namespace, "err", err)
			return
		}
		c.broker.RouteInbound(s.id, p.Namespace, name, args, p.ID)
	case PacketTypeAck:
		s := c.socket(p.Namespace)
		if s == nil || p.ID == nil {
			return
		}
		args, _ := p.Data.([]any)
		s.handleAck(*p.ID, args)
	}
}

func (c *client) connect(nsp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.sockets[nsp]; ok {
		return
	}
	c.sockets[nsp] = c.broker.Of(nsp).connect(c)
}

func (c *client) socket(nsp string) *Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sockets[nsp]
}

func (c *client) forget(nsp string, s *Socket) {
	c.mu.Lock()
	if c.sockets[nsp] == s {
		delete(c.sockets, nsp)
	}
	c.mu.Unlock()
}

// close disconnects every namespace socket of the session.
func (c *client) close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sockets := make([]*Socket, 0, len(c.sockets))
	for _, s := range c.sockets {
		sockets = append(sockets, s)
	}
	c.sockets = make(map[string]*Socket)
	c.mu.Unlock()

	for _, s := range sockets {
		s.namespace.disconnect(s, reason)
	}
}
