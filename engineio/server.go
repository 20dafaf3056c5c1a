// Package engineio implements the WebSocket-only subset of the Engine.IO v4
// transport: handshake, heartbeat and message framing.
package engineio

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrSessionClosed = errors.New("engineio: session closed")
	ErrSlowClient    = errors.New("engineio: slow client")
)

// Config holds Engine.IO server configuration.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int64 // bytes
	WriteQueue   int   // outgoing packets buffered per session
	WriteTimeout time.Duration

	// CheckOrigin validates the Origin header of upgrade requests. Nil allows
	// every origin.
	CheckOrigin func(r *http.Request) bool

	// Authorize runs before the upgrade. A non-nil error rejects the request
	// with 401. The returned value is kept on the session, see Session.Auth.
	Authorize func(r *http.Request) (any, error)
}

// DefaultConfig returns the defaults advertised by the reference server.
func DefaultConfig() *Config {
	return &Config{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		MaxPayload:   1e6,
		WriteQueue:   256,
		WriteTimeout: 10 * time.Second,
	}
}

// Server upgrades HTTP requests to Engine.IO sessions.
type Server struct {
	config    *Config
	upgrader  websocket.Upgrader
	sessions  sync.Map
	count     atomic.Int64
	onConnect func(*Session)
	log       *slog.Logger
}

// NewServer creates a server. A nil config uses DefaultConfig and a nil
// logger uses slog.Default.
func NewServer(config *Config, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = defaults.PingTimeout
	}
	if config.MaxPayload <= 0 {
		config.MaxPayload = defaults.MaxPayload
	}
	if config.WriteQueue <= 0 {
		config.WriteQueue = defaults.WriteQueue
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.With("component", "engineio"),
	}
}

// ServeHTTP handles the WebSocket upgrade of an Engine.IO request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "Only WebSocket transport is supported", http.StatusBadRequest)
		return
	}

	var auth any
	if s.config.Authorize != nil {
		var err error
		if auth, err = s.config.Authorize(r); err != nil {
			s.log.Warn("handshake rejected", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(s.config.MaxPayload)

	sid := uuid.NewString()
	handshake, err := encodeHandshake(sid, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, handshake); err != nil {
		s.log.Debug("handshake write failed", "sid", sid, "err", err)
		_ = conn.Close()
		return
	}

	session := newSession(sid, conn, s)
	session.auth = auth
	s.sessions.Store(sid, session)
	s.count.Add(1)
	session.OnClose(func(string) {
		s.sessions.Delete(sid)
		s.count.Add(-1)
	})

	// Handlers must be in place before the read loop starts.
	if s.onConnect != nil {
		s.onConnect(session)
	}
	session.start()
	s.log.Debug("session opened", "sid", sid, "remote", r.RemoteAddr)
}

// OnConnect sets the callback for new sessions.
func (s *Server) OnConnect(fn func(*Session)) {
	s.onConnect = fn
}

// Session looks up an open session.
func (s *Server) Session(sid string) (*Session, bool) {
	val, ok := s.sessions.Load(sid)
	if !ok {
		return nil, false
	}
	return val.(*Session), true
}

// Count returns the number of open sessions.
func (s *Server) Count() int {
	return int(s.count.Load())
}

// Close closes every open session.
func (s *Server) Close() {
	s.sessions.Range(func(_, value any) bool {
		value.(*Session).Close("server shutdown")
		return true
	})
}
