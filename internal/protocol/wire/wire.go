package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// Uint32Len is the encoded size of a uint32.
	Uint32Len = 4
	// MaxLength is the largest length a string prefix can carry.
	MaxLength = 1<<32 - 1
)

var (
	ErrShortRead  = errors.New("wire: short read")
	ErrOutOfRange = errors.New("wire: value out of range")
)

// Reader is a sequential cursor over one message payload.
// A failed read leaves the cursor unchanged.
type Reader struct {
	buf []byte
	off int
}

func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Len() < Uint32Len {
		return 0, ErrShortRead
	}
	v := binary.BigEndian.Uint32(r.buf[r.off : r.off+Uint32Len])
	r.off += Uint32Len
	return v, nil
}

// ReadString reads a uint32 length followed by that many bytes. The
// returned slice is a copy.
func (r *Reader) ReadString() ([]byte, error) {
	if r.Len() < Uint32Len {
		return nil, ErrShortRead
	}
	l := binary.BigEndian.Uint32(r.buf[r.off : r.off+Uint32Len])
	if uint64(r.Len()-Uint32Len) < uint64(l) {
		return nil, ErrShortRead
	}
	start := r.off + Uint32Len
	end := start + int(l)
	val := make([]byte, l)
	copy(val, r.buf[start:end])
	r.off = end
	return val, nil
}

// ReadRest consumes and returns a copy of every remaining byte.
func (r *Reader) ReadRest() []byte {
	val := make([]byte, r.Len())
	copy(val, r.buf[r.off:])
	r.off = len(r.buf)
	return val
}

// EOM reports whether the whole payload has been consumed.
func (r *Reader) EOM() bool {
	return r.off == len(r.buf)
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

func (r *Reader) Offset() int {
	return r.off
}

// Writer is an append-only payload builder.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteLength writes n as a uint32 after checking it fits.
func (w *Writer) WriteLength(n int) error {
	if n < 0 || uint64(n) > MaxLength {
		return ErrOutOfRange
	}
	w.WriteUint32(uint32(n))
	return nil
}

// WriteString writes b with its uint32 length prefix.
func (w *Writer) WriteString(b []byte) error {
	if err := w.WriteLength(len(b)); err != nil {
		return err
	}
	w.buf = append(w.buf, b...)
	return nil
}

// WriteRaw appends b without a length prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// StringLen returns the encoded size of b as a length-prefixed string.
func StringLen(b []byte) int {
	return Uint32Len + len(b)
}
