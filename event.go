package sockhub

// Reserved and application event names.
const (
	EventMessage      = "message"
	EventAnnouncement = "announcement"
	EventNicknames    = "nicknames"
)

// Announcement actions.
const (
	ActionConnected    = "connected"
	ActionDisconnected = "disconnected"

	legacyActionDisconnected = "disconected"
)

// Announcement is the payload of the announcement event.
type Announcement struct {
	User   string `json:"user"`
	Action string `json:"action"`
}

// EventHandler handles one inbound event.
type EventHandler func(e *Event)

// Event is an inbound event as delivered to a handler.
type Event struct {
	Name   string
	Args   []any
	Socket *Socket

	ack *ackResponder
}

// Arg returns the i-th argument, or nil when absent.
func (e *Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// WantsAck reports whether the sender asked for an acknowledgement.
func (e *Event) WantsAck() bool {
	return e.ack != nil
}

// Ack answers the sender's acknowledgement request. Only the first call
// sends anything; it is a no-op when no ack was requested.
func (e *Event) Ack(args ...any) {
	if e.ack == nil {
		return
	}
	e.ack.reply(args)
}
