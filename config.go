package sockhub

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ramory-l/sockhub/auth"
	"github.com/ramory-l/sockhub/bus"
)

// Config represents broker configuration.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int64 // bytes
	WriteQueue   int   // outgoing frames buffered per session

	// NodeID identifies this process on the cluster bus. Empty means a
	// random id is generated.
	NodeID string

	// LegacyAnnouncements makes disconnect announcements carry the action
	// string "disconected", as emitted by the original chat server.
	LegacyAnnouncements bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		MaxPayload:   1e6,
		WriteQueue:   256,
	}
}

// ConfigFromEnv builds a Config from SOCKHUB_* variables found through
// lookup, starting from DefaultConfig. Durations use time.ParseDuration
// syntax.
func ConfigFromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookup("SOCKHUB_PING_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SOCKHUB_PING_INTERVAL: %w", err)
		}
		cfg.PingInterval = d
	}
	if v, ok := lookup("SOCKHUB_PING_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SOCKHUB_PING_TIMEOUT: %w", err)
		}
		cfg.PingTimeout = d
	}
	if v, ok := lookup("SOCKHUB_MAX_PAYLOAD"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("SOCKHUB_MAX_PAYLOAD: %w", err)
		}
		cfg.MaxPayload = n
	}
	if v, ok := lookup("SOCKHUB_WRITE_QUEUE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SOCKHUB_WRITE_QUEUE: %w", err)
		}
		cfg.WriteQueue = n
	}
	if v, ok := lookup("SOCKHUB_NODE_ID"); ok {
		cfg.NodeID = v
	}
	if v, ok := lookup("SOCKHUB_LEGACY_ANNOUNCEMENTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("SOCKHUB_LEGACY_ANNOUNCEMENTS: %w", err)
		}
		cfg.LegacyAnnouncements = b
	}
	return cfg, nil
}

// Option configures collaborators of a Broker.
type Option func(*Broker)

// WithLogger sets a custom logger implementation.
func WithLogger(l Logger) Option {
	return func(b *Broker) { b.log = l }
}

// WithSlog sets an slog.Logger for the broker and its transport.
func WithSlog(l *slog.Logger) Option {
	return func(b *Broker) {
		b.log = &slogLogger{l: l}
		b.slog = l
	}
}

// WithBus fans broadcasts out to other brokers through bus.
func WithBus(bb bus.Bus) Option {
	return func(b *Broker) { b.bus = bb }
}

// WithJWT requires a valid bearer token on every transport handshake.
func WithJWT(v auth.JWTValidator) Option {
	return func(b *Broker) { b.validator = v }
}

// WithCheckOrigin sets the origin check for WebSocket upgrades.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(b *Broker) { b.checkOrigin = fn }
}
