package sockhub

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ramory-l/sockhub/bus/redisbus"
)

func TestClusterBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := func() *Broker {
		b := newTestBroker(t, WithBus(redisbus.New(client, "")))
		if err := b.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		return b
	}
	b1, b2 := node(), node()

	c1 := attach(b1, "c1")
	s1 := join(t, b1, c1, "/")
	c2 := attach(b2, "c2")
	s2 := join(t, b2, c2, "/")
	s2.Join("room")

	t.Run("reaches the other node once", func(t *testing.T) {
		if err := b1.Emit("news", "x"); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		c1.Expect(t, `2["news","x"]`)
		c2.Expect(t, `2["news","x"]`)
		c1.Quiet(t, 100*time.Millisecond)
		c2.Quiet(t, 100*time.Millisecond)
	})

	t.Run("rooms apply on the other node", func(t *testing.T) {
		if err := b1.To("room").Emit("room", 1); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		c2.Expect(t, `2["room",1]`)
		c1.Quiet(t, 100*time.Millisecond)
	})

	t.Run("except applies on the other node", func(t *testing.T) {
		if err := b1.Broadcast("/", "news", s2.ID(), "y"); err != nil {
			t.Fatalf("Broadcast() error = %v", err)
		}
		c1.Expect(t, `2["news","y"]`)
		c2.Quiet(t, 100*time.Millisecond)
	})

	t.Run("socket emit stays local", func(t *testing.T) {
		if err := s1.Emit("direct", "z"); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		c1.Expect(t, `2["direct","z"]`)
		c2.Quiet(t, 100*time.Millisecond)
	})
}

func TestClusterNicknamesStayLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := func() *Broker {
		b := newTestBroker(t, WithBus(redisbus.New(client, "")))
		if err := b.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		ns := b.Of("/chat")
		ns.On("nickname", func(e *Event) {
			nick, _ := e.Arg(0).(string)
			ns.ClaimNickname(e.Socket, nick, func(taken bool) { e.Ack(taken) })
		})
		return b
	}
	b1, b2 := node(), node()

	c2 := attach(b2, "c2")
	s2 := join(t, b2, c2, "/chat")
	emitFrom(t, b2, c2, "/chat", intp(1), "nickname", "carol")
	c2.Expect(t, `3/chat,1[false]`)
	if p := nextPacket(t, c2); !reflect.DeepEqual(p.Data, []any{"nicknames", map[string]any{"carol": s2.ID()}}) {
		t.Fatalf("expected carol's table, got %v", p.Data)
	}

	c1 := attach(b1, "c1")
	s1 := join(t, b1, c1, "/chat")
	emitFrom(t, b1, c1, "/chat", intp(1), "nickname", "alice")
	c1.Expect(t, `3/chat,1[false]`)
	if p := nextPacket(t, c1); !reflect.DeepEqual(p.Data, []any{"nicknames", map[string]any{"alice": s1.ID()}}) {
		t.Fatalf("expected alice's table, got %v", p.Data)
	}

	t.Run("claim is not announced on the other node", func(t *testing.T) {
		c2.Quiet(t, 150*time.Millisecond)
		if got, want := b2.Of("/chat").Nicknames().Snapshot(), map[string]string{"carol": s2.ID()}; !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("release is not announced on the other node", func(t *testing.T) {
		b1.Detach("c1", "transport close")
		settle(b1.Of("/chat"))
		c2.Quiet(t, 150*time.Millisecond)
	})

	t.Run("broadcasts still cross nodes", func(t *testing.T) {
		if err := b1.Of("/chat").Emit("news", "x"); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		c2.Expect(t, `2/chat,["news","x"]`)
	})
}
