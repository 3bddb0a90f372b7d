package oid

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidOID = errors.New("oid: invalid object identifier")

// Decode returns the dotted form of the DER contents b. It reports false
// for empty input, a truncated sub-identifier or an arc that does not
// fit in 64 bits.
func Decode(b []byte) (string, bool) {
	arcs, ok := Arcs(b)
	if !ok {
		return "", false
	}
	return Format(arcs), true
}

// Arcs splits the DER contents b into arcs. The leading byte packs the
// first two arcs; the rest are base-128 sub-identifiers.
func Arcs(b []byte) ([]uint64, bool) {
	if len(b) == 0 {
		return nil, false
	}
	head := uint64(b[0])
	first := min(head/40, 2)
	arcs := make([]uint64, 0, len(b)+1)
	arcs = append(arcs, first, head-40*first)
	for off := 1; off < len(b); {
		v, n, ok := readArc(b[off:])
		if !ok {
			return nil, false
		}
		off += n
		arcs = append(arcs, v)
	}
	return arcs, true
}

// readArc decodes one base-128 sub-identifier and returns it with the
// number of bytes consumed.
func readArc(b []byte) (uint64, int, bool) {
	var v uint64
	for i, c := range b {
		if v > math.MaxUint64>>7 {
			return 0, 0, false
		}
		v = v<<7 | uint64(c&0x7F)
		if c&0x80 == 0 {
			return v, i + 1, true
		}
	}
	return 0, 0, false
}

// Format joins arcs with dots.
func Format(arcs []uint64) string {
	var sb strings.Builder
	for i, arc := range arcs {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.FormatUint(arc, 10))
	}
	return sb.String()
}

// Encode returns the DER contents octets for a dotted OID.
func Encode(dotted string) ([]byte, error) {
	parts := strings.Split(dotted, ".")
	if len(parts) < 2 {
		return nil, ErrInvalidOID
	}
	arcs := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, ErrInvalidOID
		}
		arcs[i] = v
	}
	if arcs[0] > 2 || (arcs[0] < 2 && arcs[1] >= 40) {
		return nil, ErrInvalidOID
	}
	// The first two arcs share one byte.
	if arcs[1] > 0xFF-40*arcs[0] {
		return nil, ErrInvalidOID
	}

	out := []byte{byte(arcs[0]*40 + arcs[1])}
	for _, arc := range arcs[2:] {
		out = appendArc(out, arc)
	}
	return out, nil
}

func appendArc(dst []byte, v uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
	}
	return append(dst, tmp[i:]...)
}
