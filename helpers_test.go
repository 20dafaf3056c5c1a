package sockhub

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ramory-l/sockhub/internal/testconn"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(t *testing.T, opts ...Option) *Broker {
	t.Helper()
	b := NewBroker(nil, append([]Option{WithSlog(quietLogger())}, opts...)...)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func attach(b *Broker, id string) *testconn.Conn {
	c := testconn.New(id)
	b.Attach(c)
	return c
}

func deliver(t *testing.T, b *Broker, c *testconn.Conn, p *Packet) {
	t.Helper()
	frame, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b.Deliver(c.ID(), frame)
}

// join connects c to nsp and returns the server-side socket.
func join(t *testing.T, b *Broker, c *testconn.Conn, nsp string) *Socket {
	t.Helper()
	deliver(t, b, c, &Packet{Type: PacketTypeConnect, Namespace: nsp})

	p := nextPacket(t, c)
	data, _ := p.Data.(map[string]any)
	sid, _ := data["sid"].(string)
	if p.Type != PacketTypeConnect || sid == "" {
		t.Fatalf("expected connect reply, got %+v", p)
	}
	s, ok := b.Of(nsp).Socket(sid)
	if !ok {
		t.Fatalf("socket %s not in %s", sid, nsp)
	}
	return s
}

func emitFrom(t *testing.T, b *Broker, c *testconn.Conn, nsp string, id *int, event string, args ...any) {
	t.Helper()
	deliver(t, b, c, eventPacket(nsp, event, args, id))
}

func nextPacket(t *testing.T, c *testconn.Conn) *Packet {
	t.Helper()
	p, err := DecodePacket([]byte(c.Next(t)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

func intp(i int) *int { return &i }

// receive waits for a value on ch.
func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testconn.Timeout):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

// settle waits until every task queued on ns so far has run.
func settle(ns *Namespace) {
	ns.queue.wait()
}

const quiet = 50 * time.Millisecond
