package protocol

import (
	"fmt"

	"github.com/hnpl/libapps/internal/protocol/wire"
)

// WriteMessage encodes f as a message of type t. f must be the shape
// for t; Raw is accepted only for message numbers without a shape.
func WriteMessage(t MessageNumber, f Fields) (*Message, error) {
	if f == nil {
		return nil, ErrMissingFields
	}
	if f.MessageType() != t {
		return nil, fmt.Errorf("%w: %s fields for %s", ErrMessageTypeMismatch, f.MessageType(), t)
	}
	if _, raw := f.(Raw); raw && HasShape(t) {
		return nil, fmt.Errorf("%w: raw payload for typed %s", ErrMessageTypeMismatch, t)
	}

	// The frame length counts the type byte too.
	n := f.encodedLen()
	if uint64(n) > wire.MaxLength-1 {
		return nil, fmt.Errorf("protocol: encode %s: payload of %d bytes: %w", t, n, wire.ErrOutOfRange)
	}

	w := wire.NewWriter(n)
	if err := f.encode(w); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", t, err)
	}
	return &Message{Type: t, Fields: f, payload: w.Bytes()}, nil
}

// Encode is WriteMessage keyed by the shape's own message number.
func Encode(f Fields) (*Message, error) {
	if f == nil {
		return nil, ErrMissingFields
	}
	return WriteMessage(f.MessageType(), f)
}
