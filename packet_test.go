package sockhub

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  *Packet
	}{
		{
			name:  "connect default namespace",
			frame: "0",
			want:  &Packet{Type: PacketTypeConnect, Namespace: "/"},
		},
		{
			name:  "connect namespace without body",
			frame: "0/chat",
			want:  &Packet{Type: PacketTypeConnect, Namespace: "/chat"},
		},
		{
			name:  "connect with auth payload",
			frame: `0/chat,{"token":"x"}`,
			want:  &Packet{Type: PacketTypeConnect, Namespace: "/chat", Data: map[string]any{"token": "x"}},
		},
		{
			name:  "event",
			frame: `2["hi",1,"two"]`,
			want:  &Packet{Type: PacketTypeEvent, Namespace: "/", Data: []any{"hi", float64(1), "two"}},
		},
		{
			name:  "event with namespace and ack id",
			frame: `2/chat,12["nickname",{"nickname":"alice"}]`,
			want: &Packet{
				Type:      PacketTypeEvent,
				Namespace: "/chat",
				ID:        intp(12),
				Data:      []any{"nickname", map[string]any{"nickname": "alice"}},
			},
		},
		{
			name:  "ack",
			frame: `3/main,0[true]`,
			want:  &Packet{Type: PacketTypeAck, Namespace: "/main", ID: intp(0), Data: []any{true}},
		},
		{
			name:  "disconnect",
			frame: "1/chat,",
			want:  &Packet{Type: PacketTypeDisconnect, Namespace: "/chat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePacket([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodePacket(%q) error = %v", tt.frame, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodePacket(%q) = %+v, want %+v", tt.frame, got, tt.want)
			}
		})
	}
}

func TestDecodePacketErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"empty", "", ErrEmptyPacket},
		{"bad type", "9", ErrInvalidPacketType},
		{"not a digit", "x[]", ErrInvalidPacketType},
		{"binary event", `51-["a",{"_placeholder":true,"num":0}]`, ErrBinaryNotSupported},
		{"binary ack", `61-[{"_placeholder":true,"num":0}]`, ErrBinaryNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket([]byte(tt.frame))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("bad json", func(t *testing.T) {
		if _, err := DecodePacket([]byte(`2["unterminated`)); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestPacketEncode(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   string
	}{
		{"connect reply", &Packet{Type: PacketTypeConnect, Namespace: "/", Data: map[string]any{"sid": "abc"}}, `0{"sid":"abc"}`},
		{"event default namespace", eventPacket("/", "message", []any{"hi"}, nil), `2["message","hi"]`},
		{"event without args", eventPacket("/main", "echo", nil, nil), `2/main,["echo"]`},
		{"event with ack", eventPacket("/main", "q", []any{1}, intp(3)), `2/main,3["q",1]`},
		{"ack without args", ackPacket("/", 4, nil), `34[]`},
		{"ack", ackPacket("/chat", 0, []any{false}), `3/chat,0[false]`},
		{"disconnect", &Packet{Type: PacketTypeDisconnect, Namespace: "/chat"}, `1/chat,`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.packet.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("unencodable data", func(t *testing.T) {
		p := eventPacket("/", "bad", []any{make(chan int)}, nil)
		if _, err := p.Encode(); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestPacketEvent(t *testing.T) {
	t.Run("name and args", func(t *testing.T) {
		p := &Packet{Type: PacketTypeEvent, Data: []any{"ev", "a", float64(2)}}
		name, args, err := p.event()
		if err != nil {
			t.Fatalf("event() error = %v", err)
		}
		if name != "ev" || !reflect.DeepEqual(args, []any{"a", float64(2)}) {
			t.Errorf("event() = %q %v", name, args)
		}
	})

	malformed := map[string]any{
		"nil body":     nil,
		"object body":  map[string]any{"event": "x"},
		"empty array":  []any{},
		"numeric name": []any{float64(1), "x"},
	}
	for name, data := range malformed {
		t.Run(name, func(t *testing.T) {
			p := &Packet{Type: PacketTypeEvent, Data: data}
			if _, _, err := p.event(); !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}
