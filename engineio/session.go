package engineio

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is one Engine.IO connection. It is safe for concurrent use.
type Session struct {
	id       string
	conn     *websocket.Conn
	config   *Config
	log      *slog.Logger
	outgoing chan *Packet
	pong     chan struct{}
	auth     any

	closeOnce sync.Once
	closed    chan struct{}

	mu        sync.RWMutex
	onMessage func([]byte)
	onClose   []func(string)
}

func newSession(id string, conn *websocket.Conn, server *Server) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		config:   server.config,
		log:      server.log.With("sid", id),
		outgoing: make(chan *Packet, server.config.WriteQueue),
		pong:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Auth returns what Config.Authorize returned for the handshake, or nil.
func (s *Session) Auth() any {
	return s.auth
}

func (s *Session) start() {
	go s.writeLoop()
	go s.readLoop()
	go s.heartbeat()
}

// Send queues a packet. It never blocks: a full queue yields ErrSlowClient.
func (s *Session) Send(packet *Packet) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outgoing <- packet:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		return ErrSlowClient
	}
}

// Write queues data as a message packet.
func (s *Session) Write(data []byte) error {
	return s.Send(NewMessage(data))
}

// Close ends the session and runs the close callbacks once.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.RLock()
		handlers := s.onClose
		s.mu.RUnlock()

		s.log.Debug("session closed", "reason", reason)
		for _, fn := range handlers {
			fn(reason)
		}
	})
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// OnMessage sets the handler for message payloads. It is called from the
// session's read goroutine.
func (s *Session) OnMessage(fn func([]byte)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// OnClose adds a close callback.
func (s *Session) OnClose(fn func(string)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !isNormalClose(err) {
				s.log.Warn("read failed", "err", err)
			}
			s.Close("transport close")
			return
		}

		packet, err := DecodePacket(data)
		if err != nil {
			s.log.Debug("dropping bad packet", "err", err)
			continue
		}

		switch packet.Type {
		case PacketTypePing:
			_ = s.Send(&Packet{Type: PacketTypePong, Data: packet.Data})
		case PacketTypePong:
			select {
			case s.pong <- struct{}{}:
			default:
			}
		case PacketTypeMessage:
			s.mu.RLock()
			handler := s.onMessage
			s.mu.RUnlock()
			if handler != nil {
				handler(packet.Data)
			}
		case PacketTypeClose:
			s.Close("client close")
			return
		}
	}
}

// writeLoop owns every write to the connection and closes it on exit.
func (s *Session) writeLoop() {
	defer s.conn.Close()

	for {
		select {
		case packet := <-s.outgoing:
			if err := s.write(packet); err != nil {
				if !isNormalClose(err) {
					s.log.Warn("write failed", "err", err)
				}
				s.Close("write error")
				return
			}
		case <-s.closed:
			_ = s.write(&Packet{Type: PacketTypeClose})
			return
		}
	}
}

func (s *Session) write(packet *Packet) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, packet.Encode())
}

// heartbeat sends a ping every PingInterval and closes the session when the
// pong does not arrive within PingTimeout.
func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
		}

		if err := s.Send(&Packet{Type: PacketTypePing}); errors.Is(err, ErrSessionClosed) {
			return
		}

		timeout := time.NewTimer(s.config.PingTimeout)
		select {
		case <-s.pong:
			timeout.Stop()
		case <-timeout.C:
			s.Close("ping timeout")
			return
		case <-s.closed:
			timeout.Stop()
			return
		}
	}
}

// isNormalClose reports whether err is an expected end of a connection.
func isNormalClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
