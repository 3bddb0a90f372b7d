package protocol

import (
	"github.com/hnpl/libapps/internal/protocol/frame"
)

// Message is one agent message: its number, its raw payload and, once
// read, the decoded fields. A Message belongs to a single exchange and
// is not safe for concurrent use.
type Message struct {
	Type   MessageNumber
	Fields Fields

	payload []byte
}

// NewMessage wraps a payload that has not been decoded yet.
func NewMessage(t MessageNumber, payload []byte) *Message {
	if payload == nil {
		payload = []byte{}
	}
	return &Message{Type: t, payload: payload}
}

// Payload returns the raw payload bytes.
func (m *Message) Payload() []byte {
	return m.payload
}

// Frame returns the message as a wire frame.
func (m *Message) Frame() frame.Frame {
	return frame.Frame{Type: uint8(m.Type), Payload: m.payload}
}

// Raw returns the length-prefixed wire encoding of the message.
func (m *Message) Raw() []byte {
	return frame.Serialize(uint8(m.Type), m.payload)
}

// FromFrame decodes the fields carried by f.
func FromFrame(f frame.Frame) (*Message, error) {
	return ReadMessage(NewMessage(MessageNumber(f.Type), f.Payload))
}

// FromRaw parses one complete raw frame and decodes its fields. Frame
// level failures match frame.ErrInvalidFrame; payload failures are
// *DecodeError.
func FromRaw(raw []byte) (*Message, error) {
	f, err := frame.Parse(raw)
	if err != nil {
		return nil, err
	}
	return FromFrame(f)
}
