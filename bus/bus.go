// Package bus carries broadcasts between broker processes.
package bus

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message is one broadcast published by a node. Frame is the encoded
// Socket.IO packet, ready to be written to every matching socket.
type Message struct {
	Node      string
	Namespace string
	Rooms     []string
	Except    []string
	Frame     []byte
}

// Handler receives messages from other nodes.
type Handler func(Message)

// Bus publishes and receives Messages.
type Bus interface {
	Publish(ctx context.Context, m Message) error
	// Subscribe starts delivering messages to h. It returns once the
	// subscription is active.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Marshal encodes m as a protobuf Struct.
func Marshal(m Message) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"node":   m.Node,
		"nsp":    m.Namespace,
		"rooms":  anyList(m.Rooms),
		"except": anyList(m.Except),
		"frame":  string(m.Frame),
	})
	if err != nil {
		return nil, fmt.Errorf("bus: build message: %w", err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("bus: marshal message: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(b []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Message{}, fmt.Errorf("bus: unmarshal message: %w", err)
	}
	f := s.GetFields()
	return Message{
		Node:      f["node"].GetStringValue(),
		Namespace: f["nsp"].GetStringValue(),
		Rooms:     fromList(f["rooms"].GetListValue()),
		Except:    fromList(f["except"].GetListValue()),
		Frame:     []byte(f["frame"].GetStringValue()),
	}, nil
}

func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func fromList(l *structpb.ListValue) []string {
	values := l.GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}
