// Package chat is the nickname chat room: a socket claims a nickname, then
// its messages are relayed to everyone else in the namespace.
package chat

import (
	"github.com/ramory-l/sockhub"
)

// Events handled by the room.
const (
	EventNickname    = "nickname"
	EventUserMessage = "user message"
)

// UserMessage is relayed to the other members of the room.
type UserMessage struct {
	User    string `json:"user"`
	Message any    `json:"message"`
}

// inbound is one of the events the room understands.
type inbound interface{ inbound() }

type nicknameClaim struct{ nickname string }

type userMessage struct{ message any }

type unrecognized struct{ name string }

func (nicknameClaim) inbound() {}
func (userMessage) inbound()   {}
func (unrecognized) inbound()  {}

func decode(e *sockhub.Event) inbound {
	switch e.Name {
	case EventNickname:
		nick, _ := field(e.Arg(0), "nickname").(string)
		return nicknameClaim{nickname: nick}
	case EventUserMessage:
		return userMessage{message: field(e.Arg(0), "message")}
	default:
		return unrecognized{name: e.Name}
	}
}

// field reads key from an object payload; any other payload is returned
// as is.
func field(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return v
}

// Register installs the room's handlers on ns.
func Register(ns *sockhub.Namespace) {
	h := func(e *sockhub.Event) { handle(ns, e) }
	ns.On(EventNickname, h)
	ns.On(EventUserMessage, h)
}

func handle(ns *sockhub.Namespace, e *sockhub.Event) {
	switch m := decode(e).(type) {
	case nicknameClaim:
		ns.ClaimNickname(e.Socket, m.nickname, func(taken bool) { e.Ack(taken) })
	case userMessage:
		_ = e.Socket.Broadcast().Emit(EventUserMessage, UserMessage{
			User:    e.Socket.Nickname(),
			Message: m.message,
		})
	case unrecognized:
	}
}
