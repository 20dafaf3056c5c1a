package engineio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Decode errors.
var (
	ErrEmptyPacket       = errors.New("engineio: empty packet")
	ErrInvalidPacketType = errors.New("engineio: invalid packet type")
)

// PacketType is the leading digit of every Engine.IO frame.
type PacketType byte

const (
	PacketTypeOpen PacketType = iota
	PacketTypeClose
	PacketTypePing
	PacketTypePong
	PacketTypeMessage
	PacketTypeUpgrade
	PacketTypeNoop
)

// Packet is one Engine.IO frame. Message packets carry a Socket.IO packet
// as their payload.
type Packet struct {
	Type PacketType
	Data []byte
}

// NewMessage wraps an upper-layer payload in a message packet.
func NewMessage(data []byte) *Packet {
	return &Packet{Type: PacketTypeMessage, Data: data}
}

// Encode renders the packet in its text form.
func (p *Packet) Encode() []byte {
	out := make([]byte, 1, len(p.Data)+1)
	out[0] = '0' + byte(p.Type)
	return append(out, p.Data...)
}

// DecodePacket parses a text frame. The returned packet's Data aliases frame.
func DecodePacket(frame []byte) (*Packet, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyPacket
	}
	c := frame[0]
	if c < '0' || c > '0'+byte(PacketTypeNoop) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPacketType, c)
	}
	p := &Packet{Type: PacketType(c - '0')}
	if len(frame) > 1 {
		p.Data = frame[1:]
	}
	return p, nil
}

// Handshake is the payload of the open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

func encodeHandshake(sid string, cfg *Config) ([]byte, error) {
	data, err := json.Marshal(Handshake{
		SID:          sid,
		Upgrades:     []string{},
		PingInterval: cfg.PingInterval.Milliseconds(),
		PingTimeout:  cfg.PingTimeout.Milliseconds(),
		MaxPayload:   cfg.MaxPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("engineio: marshal handshake: %w", err)
	}
	return (&Packet{Type: PacketTypeOpen, Data: data}).Encode(), nil
}

func (pt PacketType) String() string {
	switch pt {
	case PacketTypeOpen:
		return "open"
	case PacketTypeClose:
		return "close"
	case PacketTypePing:
		return "ping"
	case PacketTypePong:
		return "pong"
	case PacketTypeMessage:
		return "message"
	case PacketTypeUpgrade:
		return "upgrade"
	case PacketTypeNoop:
		return "noop"
	default:
		return "unknown(" + strconv.Itoa(int(pt)) + ")"
	}
}
