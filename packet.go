package sockhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Packet decode errors.
var (
	ErrEmptyPacket        = errors.New("sockhub: empty packet")
	ErrInvalidPacketType  = errors.New("sockhub: invalid packet type")
	ErrBinaryNotSupported = errors.New("sockhub: binary packets are not supported")
	ErrMalformedEvent     = errors.New("sockhub: malformed event")
)

// PacketType enumerates Socket.IO v4 packet types.
type PacketType int

const (
	PacketTypeConnect PacketType = iota
	PacketTypeDisconnect
	PacketTypeEvent
	PacketTypeAck
	PacketTypeConnectError
	PacketTypeBinaryEvent
	PacketTypeBinaryAck
)

// Packet is one Socket.IO packet. Data is the decoded JSON body: the
// [event, args...] array for events, the args array for acks and an object
// for connect packets.
type Packet struct {
	Type      PacketType
	Namespace string
	Data      any
	ID        *int
}

// Encode renders the packet in the text wire format
// <type>[<namespace>,][<id>][<json>].
func (p *Packet) Encode() ([]byte, error) {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(p.Type)))

	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	if p.Data != nil {
		body, err := json.Marshal(p.Data)
		if err != nil {
			return nil, fmt.Errorf("sockhub: marshal %s packet: %w", p.Type, err)
		}
		b.Write(body)
	}
	return []byte(b.String()), nil
}

// DecodePacket parses a text packet. Numbers in the body decode as float64.
func DecodePacket(frame []byte) (*Packet, error) {
	data := string(frame)
	if data == "" {
		return nil, ErrEmptyPacket
	}

	c := data[0]
	if c < '0' || c > '6' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPacketType, c)
	}
	p := &Packet{Type: PacketType(c - '0'), Namespace: "/"}
	if p.Type == PacketTypeBinaryEvent || p.Type == PacketTypeBinaryAck {
		return nil, ErrBinaryNotSupported
	}
	rest := data[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end == -1 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return nil, fmt.Errorf("sockhub: bad ack id %q: %w", rest[:digits], err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &p.Data); err != nil {
			return nil, fmt.Errorf("sockhub: unmarshal packet body: %w", err)
		}
	}
	return p, nil
}

// event splits an event packet body into its name and arguments.
func (p *Packet) event() (string, []any, error) {
	body, ok := p.Data.([]any)
	if !ok || len(body) == 0 {
		return "", nil, ErrMalformedEvent
	}
	name, ok := body[0].(string)
	if !ok {
		return "", nil, ErrMalformedEvent
	}
	return name, body[1:], nil
}

func eventPacket(namespace, event string, args []any, id *int) *Packet {
	body := make([]any, 0, len(args)+1)
	body = append(body, event)
	body = append(body, args...)
	return &Packet{Type: PacketTypeEvent, Namespace: namespace, Data: body, ID: id}
}

func ackPacket(namespace string, id int, args []any) *Packet {
	if args == nil {
		args = []any{}
	}
	return &Packet{Type: PacketTypeAck, Namespace: namespace, Data: args, ID: &id}
}

func (pt PacketType) String() string {
	switch pt {
	case PacketTypeConnect:
		return "connect"
	case PacketTypeDisconnect:
		return "disconnect"
	case PacketTypeEvent:
		return "event"
	case PacketTypeAck:
		return "ack"
	case PacketTypeConnectError:
		return "connect_error"
	case PacketTypeBinaryEvent:
		return "binary_event"
	case PacketTypeBinaryAck:
		return "binary_ack"
	default:
		return "unknown"
	}
}
