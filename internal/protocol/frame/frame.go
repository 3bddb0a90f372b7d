package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// LengthLen is the size of the big-endian length prefix.
	LengthLen = 4
	// HeaderLen is the length prefix plus the type byte.
	HeaderLen = LengthLen + 1
)

var (
	ErrInvalidFrame   = errors.New("frame: invalid frame")
	ErrShortFrame     = fmt.Errorf("%w: shorter than header", ErrInvalidFrame)
	ErrLengthMismatch = fmt.Errorf("%w: length does not match buffer", ErrInvalidFrame)
	ErrEmptyFrame     = fmt.Errorf("%w: zero length", ErrInvalidFrame)
	ErrFrameTooLarge  = fmt.Errorf("%w: frame too large", ErrInvalidFrame)
)

// Frame is one complete wire message: a type tag and its payload.
// On the wire the length covers the type byte and the payload.
type Frame struct {
	Type    uint8
	Payload []byte
}

// Len returns the value of the length prefix for f.
func (f Frame) Len() int {
	return 1 + len(f.Payload)
}

// Limits constrains stream decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

// DefaultLimits matches the OpenSSH agent message cap.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 256 * 1024,
	}
}

// Serialize returns [u32 length][type][payload]. The payload must be
// shorter than 2^32-1 bytes; WriteFrame and protocol.WriteMessage check.
func Serialize(typ uint8, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:LengthLen], uint32(1+len(payload)))
	buf[LengthLen] = typ
	copy(buf[HeaderLen:], payload)
	return buf
}

// Parse validates one complete raw frame. The buffer must hold exactly
// the number of bytes the length prefix declares.
func Parse(raw []byte) (Frame, error) {
	if len(raw) < HeaderLen {
		return Frame{}, ErrShortFrame
	}
	length := binary.BigEndian.Uint32(raw[0:LengthLen])
	if uint64(length)+LengthLen != uint64(len(raw)) {
		return Frame{}, ErrLengthMismatch
	}
	payload := make([]byte, len(raw)-HeaderLen)
	copy(payload, raw[HeaderLen:])
	return Frame{Type: raw[LengthLen], Payload: payload}, nil
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var prefix [LengthLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrame
		}
		return Frame{}, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return Frame{}, ErrEmptyFrame
	}
	if limits.MaxFrameBytes > 0 && length > limits.MaxFrameBytes {
		return Frame{}, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrame
		}
		return Frame{}, err
	}
	return Frame{Type: body[0], Payload: body[1:]}, nil
}

// WriteFrame writes f to w as a single buffer.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(f.Len()) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	if limits.MaxFrameBytes > 0 && uint64(f.Len()) > uint64(limits.MaxFrameBytes) {
		return ErrFrameTooLarge
	}
	_, err := w.Write(Serialize(f.Type, f.Payload))
	return err
}
