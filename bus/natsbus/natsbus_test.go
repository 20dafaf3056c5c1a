package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/ramory-l/sockhub/bus"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("start nats server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestBus_PublishSubscribe(t *testing.T) {
	srv := runServer(t)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := New(nc, "")
	defer b.Close()

	received := make(chan bus.Message, 1)
	if err := b.Subscribe(ctx, func(m bus.Message) { received <- m }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := bus.Message{Node: "b", Namespace: "/ns2", Rooms: []string{"r"}, Frame: []byte(`2/ns2,["message","ns1"]`)}
	if err := b.Publish(ctx, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got.Namespace != "/ns2" || string(got.Frame) != string(want.Frame) {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestBus_CloseUnsubscribes(t *testing.T) {
	srv := runServer(t)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	ctx := context.Background()
	b := New(nc, "test.close")

	received := make(chan bus.Message, 1)
	if err := b.Subscribe(ctx, func(m bus.Message) { received <- m }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Publish(ctx, bus.Message{Node: "x", Frame: []byte("2[]")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	select {
	case m := <-received:
		t.Errorf("unexpected message after Close: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}
