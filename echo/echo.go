// Package echo is the server half of the client interoperability harness.
// It answers echo requests on a main namespace and reports what clients
// send as sentinel lines:
//
//	__:OK
//	__:MESSAGE:<message>
//	__:ACKNOWLEDGE:<reply>
package echo

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ramory-l/sockhub"
)

// Events understood on the main namespace.
const (
	EventEcho               = "echo"
	EventEchoSend           = "echoSend"
	EventEchoAck            = "echoAck"
	EventRequestAcknowledge = "requestAcknowledge"
	EventDefaultNamespace   = "defaultns"
)

// Harness wires the echo handlers into a broker.
type Harness struct {
	broker *sockhub.Broker
	main   string
	delay  time.Duration
	log    *slog.Logger

	mu  sync.Mutex
	out io.Writer
}

// Option configures a Harness.
type Option func(*Harness)

// WithMainNamespace sets the namespace serving the echo events. Defaults to
// /main.
func WithMainNamespace(path string) Option {
	return func(h *Harness) { h.main = path }
}

// WithOutput sets where sentinel lines go. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(h *Harness) { h.out = w }
}

// WithDelay postpones the sends triggered by a /ns2 connection.
func WithDelay(d time.Duration) Option {
	return func(h *Harness) { h.delay = d }
}

// WithLogger sets the harness logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.log = l }
}

// New registers the harness on b.
func New(b *sockhub.Broker, opts ...Option) *Harness {
	h := &Harness{
		broker: b,
		main:   "/main",
		out:    os.Stdout,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	ns := b.Of(h.main)
	for _, event := range []string{
		EventEcho,
		EventEchoSend,
		EventEchoAck,
		EventRequestAcknowledge,
		sockhub.EventMessage,
		EventDefaultNamespace,
	} {
		ns.On(event, h.handle)
	}

	b.Of("/ns1").OnConnect(func(*sockhub.Socket) {
		h.broker.CrossNamespaceSend(h.main, "ns1")
		h.broker.CrossNamespaceSend("/ns2", "ns1")
	})
	b.Of("/ns2").OnConnect(func(*sockhub.Socket) {
		send := func() {
			h.broker.CrossNamespaceSend(h.main, "ns2")
			h.broker.CrossNamespaceSend("/ns1", "ns2")
		}
		if h.delay > 0 {
			time.AfterFunc(h.delay, send)
			return
		}
		send()
	})
	return h
}

// Ready announces that the harness accepts connections.
func (h *Harness) Ready() {
	h.println("__:OK")
}

func (h *Harness) println(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := fmt.Fprintln(h.out, line); err != nil {
		h.log.Error("write sentinel", "err", err)
	}
}

type request interface{ request() }

type (
	echoRequest   struct{ data any }
	echoSend      struct{ data any }
	echoAck       struct{ args []any }
	ackRequest    struct{ data any }
	plainMessage  struct{ data any }
	defaultNSSend struct{ data any }
	unrecognized  struct{ name string }
)

func (echoRequest) request()   {}
func (echoSend) request()      {}
func (echoAck) request()       {}
func (ackRequest) request()    {}
func (plainMessage) request()  {}
func (defaultNSSend) request() {}
func (unrecognized) request()  {}

func decode(e *sockhub.Event) request {
	switch e.Name {
	case EventEcho:
		return echoRequest{data: e.Arg(0)}
	case EventEchoSend:
		return echoSend{data: e.Arg(0)}
	case EventEchoAck:
		return echoAck{args: e.Args}
	case EventRequestAcknowledge:
		return ackRequest{data: e.Arg(0)}
	case sockhub.EventMessage:
		return plainMessage{data: e.Arg(0)}
	case EventDefaultNamespace:
		return defaultNSSend{data: e.Arg(0)}
	default:
		return unrecognized{name: e.Name}
	}
}

func (h *Harness) handle(e *sockhub.Event) {
	s := e.Socket
	var err error

	switch r := decode(e).(type) {
	case echoRequest:
		if falsy(r.data) {
			err = s.Emit(EventEcho)
		} else {
			err = s.Emit(EventEcho, r.data)
		}
	case echoSend:
		err = s.Send(r.data)
	case echoAck:
		e.Ack(r.args...)
	case ackRequest:
		err = s.EmitWithAck(EventRequestAcknowledge, func(args ...any) {
			h.println("__:ACKNOWLEDGE:" + text(first(args)))
		}, r.data)
	case plainMessage:
		h.println("__:MESSAGE:" + text(r.data))
	case defaultNSSend:
		h.broker.CrossNamespaceSend("/", r.data)
	case unrecognized:
		h.log.Debug("ignoring event", "event", r.name)
	}

	if err != nil {
		h.log.Warn("echo reply failed", "event", e.Name, "socket", s.ID(), "err", err)
	}
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// text renders a payload for a sentinel line: strings verbatim, anything
// else as JSON.
func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// falsy reports whether a decoded JSON value is false in a boolean context
// on the client side.
func falsy(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case float64:
		return v == 0
	}
	return false
}
