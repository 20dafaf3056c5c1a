package sockhub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ramory-l/sockhub/auth"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	b := newTestBroker(t)
	ns := b.Of("/")
	ns.On("echoAck", func(e *Event) { e.Ack(e.Args...) })
	reasons := make(chan string, 1)
	ns.OnDisconnect(func(_ *Socket, reason string) { reasons <- reason })

	ts := httptest.NewServer(b)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if open := readFrame(t, conn); !strings.HasPrefix(open, "0{") {
		t.Fatalf("expected open packet, got %q", open)
	}

	writeFrame(t, conn, "40")
	if reply := readFrame(t, conn); !strings.HasPrefix(reply, `40{"sid":`) {
		t.Fatalf("expected connect reply, got %q", reply)
	}

	writeFrame(t, conn, `421["echoAck",42]`)
	if got := readFrame(t, conn); got != `431[42]` {
		t.Errorf("expected 431[42], got %q", got)
	}

	if err := b.Emit("news", "hello"); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if got := readFrame(t, conn); got != `42["news","hello"]` {
		t.Errorf("expected news event, got %q", got)
	}

	conn.Close()
	select {
	case r := <-reasons:
		if r != "transport close" {
			t.Errorf("expected 'transport close', got %q", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("socket did not disconnect")
	}
}

func TestServeHTTPPath(t *testing.T) {
	b := newTestBroker(t)
	ts := httptest.NewServer(b)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/elsewhere")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestJWTHandshake(t *testing.T) {
	secret := []byte("test-secret")
	b := newTestBroker(t, WithJWT(&auth.HS256{Secret: secret}))
	subjects := make(chan string, 1)
	b.Of("/").OnConnect(func(s *Socket) {
		v, _ := s.Get(ClaimsKey)
		claims, _ := v.(*auth.Claims)
		if claims == nil {
			subjects <- ""
			return
		}
		subjects <- claims.Subject
	})
	ts := httptest.NewServer(b)
	defer ts.Close()

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
		if err == nil {
			t.Fatal("expected the handshake to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %v", resp)
		}
	})

	t.Run("bearer token", func(t *testing.T) {
		token, err := auth.NewHS256Token(secret, "alice", time.Minute)
		if err != nil {
			t.Fatalf("NewHS256Token() error = %v", err)
		}
		header := http.Header{"Authorization": []string{"Bearer " + token}}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		if open := readFrame(t, conn); !strings.HasPrefix(open, "0{") {
			t.Fatalf("expected open packet, got %q", open)
		}

		writeFrame(t, conn, "40")
		if reply := readFrame(t, conn); !strings.HasPrefix(reply, `40{"sid":`) {
			t.Fatalf("expected connect reply, got %q", reply)
		}
		select {
		case sub := <-subjects:
			if sub != "alice" {
				t.Errorf("expected claims for alice, got %q", sub)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("connect hook did not run")
		}
	})
}
