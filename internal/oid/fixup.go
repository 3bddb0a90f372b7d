package oid

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var ErrInvalidFixup = errors.New("oid: invalid fixup")

// Well-known curve OIDs that tokens have been seen to misreport.
const (
	Ed25519    = "1.3.6.1.4.1.11591.15.1"
	Curve25519 = "1.3.6.1.4.1.3029.1.5.1"
)

// Fixup corrects the curve OID bytes reported by one family of devices.
// Apply receives a private copy and returns the bytes to decode.
type Fixup struct {
	Name  string
	Label *regexp.Regexp
	Apply func(raw []byte) []byte
}

func (f Fixup) validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidFixup)
	}
	if f.Label == nil {
		return fmt.Errorf("%w: %s: missing label pattern", ErrInvalidFixup, f.Name)
	}
	// A pattern that matches these matches any reader.
	for _, label := range []string{"", " ", "\x00"} {
		if f.Label.MatchString(label) {
			return fmt.Errorf("%w: %s: label pattern %q is not specific", ErrInvalidFixup, f.Name, f.Label.String())
		}
	}
	if f.Apply == nil {
		return fmt.Errorf("%w: %s: missing apply", ErrInvalidFixup, f.Name)
	}
	return nil
}

// StripTrailingByte returns an Apply func that drops exactly one byte
// following any of the given encodings. Other input passes through.
func StripTrailingByte(known ...[]byte) func([]byte) []byte {
	return func(raw []byte) []byte {
		for _, k := range known {
			if len(raw) == len(k)+1 && bytes.HasPrefix(raw, k) {
				return raw[:len(k)]
			}
		}
		return raw
	}
}

// NewTrailingByteFixup builds a fixup for devices whose label matches
// pattern and which append one byte to the Ed25519 and Curve25519 OIDs.
func NewTrailingByteFixup(name, pattern string) (Fixup, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Fixup{}, fmt.Errorf("%w: %s: %v", ErrInvalidFixup, name, err)
	}
	f := Fixup{
		Name:  name,
		Label: re,
		Apply: StripTrailingByte(mustEncode(Ed25519), mustEncode(Curve25519)),
	}
	if err := f.validate(); err != nil {
		return Fixup{}, err
	}
	return f, nil
}

// YubicoFixup covers YubiKey OpenPGP firmware, which appends a byte after
// the 25519 curve OIDs in its algorithm attributes.
func YubicoFixup() Fixup {
	f, err := NewTrailingByteFixup("yubico", `(?i)\byubico\s+yubikey\b`)
	if err != nil {
		panic(err)
	}
	return f
}

// Table is an ordered set of fixups keyed by name. The first fixup whose
// label matches wins.
type Table struct {
	mu     sync.RWMutex
	fixups []Fixup
}

func NewTable(fixups ...Fixup) (*Table, error) {
	t := &Table{}
	for _, f := range fixups {
		if err := t.Register(f); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register adds f, replacing any fixup with the same name.
func (t *Table) Register(f Fixup) error {
	if err := f.validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.fixups {
		if t.fixups[i].Name == f.Name {
			t.fixups[i] = f
			return nil
		}
	}
	t.fixups = append(t.fixups, f)
	return nil
}

// Match returns the first fixup whose label pattern matches label.
func (t *Table) Match(label string) (Fixup, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, f := range t.fixups {
		if f.Label.MatchString(label) {
			return f, true
		}
	}
	return Fixup{}, false
}

func (t *Table) Fixups() []Fixup {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Fixup, len(t.fixups))
	copy(out, t.fixups)
	return out
}

// DecodeCurve decodes raw after applying the fixup registered for label,
// if any.
func (t *Table) DecodeCurve(raw []byte, label string) (string, bool) {
	if f, ok := t.Match(label); ok {
		buf := make([]byte, len(raw))
		copy(buf, raw)
		raw = f.Apply(buf)
	}
	return Decode(raw)
}

var defaultTable = func() *Table {
	t, err := NewTable(YubicoFixup())
	if err != nil {
		panic(err)
	}
	return t
}()

// Register adds f to the package table.
func Register(f Fixup) error {
	return defaultTable.Register(f)
}

// Fixups lists the package table.
func Fixups() []Fixup {
	return defaultTable.Fixups()
}

// DecodeCurveWithVendorFixes decodes the curve OID bytes reported by the
// device called label, using the package table.
func DecodeCurveWithVendorFixes(raw []byte, label string) (string, bool) {
	return defaultTable.DecodeCurve(raw, label)
}

func mustEncode(dotted string) []byte {
	b, err := Encode(dotted)
	if err != nil {
		panic(err)
	}
	return b
}
