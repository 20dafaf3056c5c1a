// Package natsbus implements bus.Bus on a NATS subject.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ramory-l/sockhub/bus"
)

// DefaultSubject is the subject used when none is given.
const DefaultSubject = "sockhub.broadcast"

// Bus publishes broadcasts on a NATS subject.
type Bus struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// New returns a Bus on subject. An empty subject uses DefaultSubject.
func New(conn *nats.Conn, subject string) *Bus {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Bus{
		conn:    conn,
		subject: subject,
		log:     slog.Default().With("component", "natsbus", "subject", subject),
	}
}

// Publish implements bus.Bus.
func (b *Bus) Publish(_ context.Context, m bus.Message) error {
	payload, err := bus.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("natsbus: publish: %w", err)
	}
	return nil
}

// Subscribe implements bus.Bus.
func (b *Bus) Subscribe(ctx context.Context, h bus.Handler) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		m, err := bus.Unmarshal(msg.Data)
		if err != nil {
			b.log.Warn("dropping undecodable message", "err", err)
			return
		}
		h(m)
	})
	if err != nil {
		return fmt.Errorf("natsbus: subscribe: %w", err)
	}
	// Round-trip to the server so the interest is registered on return.
	if err := b.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("natsbus: flush: %w", err)
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()
	return nil
}

// Close removes the subscription. The NATS connection stays open.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}
