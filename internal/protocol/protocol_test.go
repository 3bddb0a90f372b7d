package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/hnpl/libapps/internal/protocol/frame"
	"github.com/hnpl/libapps/internal/protocol/wire"
)

func TestWriteIdentitiesAnswerPayload(t *testing.T) {
	msg, err := WriteMessage(AgentIdentitiesAnswer, IdentitiesAnswer{Identities: []Identity{
		{KeyBlob: []byte{1, 2}, Comment: []byte{3, 4, 5}},
		{KeyBlob: []byte{6, 7, 8, 9}, Comment: []byte{}},
	}})
	if err != nil {
		t.Fatalf("write identities answer: %v", err)
	}
	if msg.Type != AgentIdentitiesAnswer {
		t.Fatalf("type mismatch: %s", msg.Type)
	}
	want := []byte{
		0, 0, 0, 2, 0, 0, 0, 2, 1, 2, 0, 0, 0, 3, 3,
		4, 5, 0, 0, 0, 4, 6, 7, 8, 9, 0, 0, 0, 0,
	}
	if !bytes.Equal(msg.Payload(), want) {
		t.Fatalf("payload mismatch:\n got=%x\nwant=%x", msg.Payload(), want)
	}
}

func TestWriteSignResponsePayload(t *testing.T) {
	msg, err := WriteMessage(AgentSignResponse, SignResponse{Signature: []byte{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("write sign response: %v", err)
	}
	if msg.Type != AgentSignResponse {
		t.Fatalf("type mismatch: %s", msg.Type)
	}
	if want := []byte{0, 0, 0, 4, 1, 2, 3, 4}; !bytes.Equal(msg.Payload(), want) {
		t.Fatalf("payload mismatch: got=%x want=%x", msg.Payload(), want)
	}
	if want := []byte{0, 0, 0, 9, 14, 0, 0, 0, 4, 1, 2, 3, 4}; !bytes.Equal(msg.Raw(), want) {
		t.Fatalf("raw mismatch: got=%x want=%x", msg.Raw(), want)
	}
}

// roundTripCases holds one value per shape. Empty slices are non-nil
// because decoding always allocates.
func roundTripCases() []Fields {
	return []Fields{
		Failure{},
		Success{},
		IdentitiesRequest{},
		IdentitiesAnswer{Identities: []Identity{}},
		IdentitiesAnswer{Identities: []Identity{
			{KeyBlob: []byte("ssh-ed25519 blob"), Comment: []byte("card 1")},
			{KeyBlob: []byte{0x00}, Comment: []byte{}},
		}},
		SignRequest{KeyBlob: []byte("blob"), Data: []byte("session data"), Flags: SignatureFlagRSASHA512},
		SignRequest{KeyBlob: []byte{}, Data: []byte{}, Flags: 0xFFFFFFFF},
		SignResponse{Signature: []byte{1, 2, 3, 4}},
		RemoveIdentity{KeyBlob: []byte("blob")},
		RemoveAllIdentities{},
		AddSmartcardKey{ReaderID: []byte("Yubico YubiKey 42"), PIN: []byte("123456")},
		RemoveSmartcardKey{ReaderID: []byte("reader"), PIN: []byte{}},
		Lock{Passphrase: []byte("hunter2")},
		Unlock{Passphrase: []byte{}},
		Extension{Name: []byte("session-bind@openssh.com"), Contents: []byte{0, 0, 0, 1, 9}},
		Extension{Name: []byte("query"), Contents: []byte{}},
		ExtensionFailure{},
		Raw{Type: AgentcAddIdentity, Payload: []byte{0, 0, 0, 1, 'x'}},
		Raw{Type: MessageNumber(200), Payload: []byte{}},
	}
}

func TestRoundTripEveryShape(t *testing.T) {
	for _, in := range roundTripCases() {
		t.Run(in.MessageType().String(), func(t *testing.T) {
			msg, err := WriteMessage(in.MessageType(), in)
			if err != nil {
				t.Fatalf("write: %v", err)
			}
			out, err := FromRaw(msg.Raw())
			if err != nil {
				t.Fatalf("from raw: %v", err)
			}
			if out.Type != in.MessageType() {
				t.Fatalf("type mismatch: got=%s want=%s", out.Type, in.MessageType())
			}
			if !reflect.DeepEqual(out.Fields, in) {
				t.Fatalf("fields mismatch:\n got=%#v\nwant=%#v", out.Fields, in)
			}
			if !bytes.Equal(out.Payload(), msg.Payload()) {
				t.Fatalf("payload mismatch")
			}
		})
	}
}

func TestEveryTypedShapeIsDispatched(t *testing.T) {
	for _, f := range roundTripCases() {
		if _, raw := f.(Raw); raw {
			if HasShape(f.MessageType()) {
				t.Fatalf("raw case uses typed number %s", f.MessageType())
			}
			continue
		}
		if !HasShape(f.MessageType()) {
			t.Fatalf("no decoder for %s", f.MessageType())
		}
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	msg, err := Encode(SignRequest{KeyBlob: []byte("k"), Data: []byte("d"), Flags: SignatureFlagRSASHA256})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := msg.Raw()
	first, err := FromRaw(raw)
	if err != nil {
		t.Fatalf("first decode: %v", err)
	}
	second, err := FromRaw(raw)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if !reflect.DeepEqual(first.Fields, second.Fields) {
		t.Fatalf("decodes differ: %#v vs %#v", first.Fields, second.Fields)
	}
}

func TestFromRawRejectsMalformedFrames(t *testing.T) {
	for _, raw := range [][]byte{
		nil,
		{0, 0, 0, 1},
		{0, 0, 0, 2, 11},
		{0, 0, 0, 1, 11, 0},
	} {
		msg, err := FromRaw(raw)
		if msg != nil {
			t.Fatalf("expected no message for %x", raw)
		}
		if !errors.Is(err, frame.ErrInvalidFrame) {
			t.Fatalf("expected frame.ErrInvalidFrame for %x, got %v", raw, err)
		}
	}
}

func TestDecodeTruncatedFields(t *testing.T) {
	cases := []struct {
		name    string
		typ     MessageNumber
		payload []byte
	}{
		{"sign request missing flags", AgentcSignRequest, []byte{0, 0, 0, 1, 'k', 0, 0, 0, 1, 'd', 0, 0}},
		{"sign request short blob", AgentcSignRequest, []byte{0, 0, 0, 9, 'k'}},
		{"sign response empty", AgentSignResponse, []byte{}},
		{"identities answer no count", AgentIdentitiesAnswer, []byte{0, 0}},
		{"identities answer short comment", AgentIdentitiesAnswer, []byte{0, 0, 0, 1, 0, 0, 0, 1, 'k', 0, 0, 0, 2, 'c'}},
		{"lock empty", AgentcLock, []byte{}},
		{"smartcard missing pin", AgentcAddSmartcardKey, []byte{0, 0, 0, 1, 'r'}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadMessage(NewMessage(tc.typ, tc.payload))
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("expected ErrTruncated, got %v", err)
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if decodeErr.Type != tc.typ {
				t.Fatalf("decode error type: got=%s want=%s", decodeErr.Type, tc.typ)
			}
		})
	}
}

func TestIdentitiesAnswerCountMustMatch(t *testing.T) {
	one := []byte{0, 0, 0, 1, 'k', 0, 0, 0, 0}

	overCount := append([]byte{0, 0, 0, 2}, one...)
	if _, err := ReadMessage(NewMessage(AgentIdentitiesAnswer, overCount)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for count above entries, got %v", err)
	}

	underCount := append(append([]byte{0, 0, 0, 1}, one...), one...)
	if _, err := ReadMessage(NewMessage(AgentIdentitiesAnswer, underCount)); !errors.Is(err, ErrTrailingData) {
		t.Fatalf("expected ErrTrailingData for count below entries, got %v", err)
	}

	huge := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := ReadMessage(NewMessage(AgentIdentitiesAnswer, huge)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for huge count, got %v", err)
	}
}

// Trailing bytes after a fixed-shape payload are rejected, not ignored.
func TestTrailingDataRejected(t *testing.T) {
	cases := []struct {
		name    string
		typ     MessageNumber
		payload []byte
	}{
		{"identities request", AgentcRequestIdentities, []byte{0}},
		{"success", AgentSuccess, []byte{1, 2}},
		{"sign response", AgentSignResponse, []byte{0, 0, 0, 1, 'x', 'y'}},
		{"sign request", AgentcSignRequest, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7}},
		{"unlock", AgentcUnlock, []byte{0, 0, 0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ReadMessage(NewMessage(tc.typ, tc.payload))
			if msg != nil {
				t.Fatalf("expected no message")
			}
			if !errors.Is(err, ErrTrailingData) {
				t.Fatalf("expected ErrTrailingData, got %v", err)
			}
		})
	}
}

func TestExtensionRequiresName(t *testing.T) {
	_, err := ReadMessage(NewMessage(AgentcExtension, []byte{0, 0, 0, 0, 1, 2}))
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestUnknownMessagePreservesPayload(t *testing.T) {
	raw := frame.Serialize(99, []byte{0xCA, 0xFE})
	msg, err := FromRaw(raw)
	if err != nil {
		t.Fatalf("from raw: %v", err)
	}
	fields, ok := msg.Fields.(Raw)
	if !ok {
		t.Fatalf("expected Raw fields, got %T", msg.Fields)
	}
	if fields.Type != 99 || !bytes.Equal(fields.Payload, []byte{0xCA, 0xFE}) {
		t.Fatalf("raw fields mismatch: %#v", fields)
	}
	again, err := WriteMessage(msg.Type, fields)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(again.Raw(), raw) {
		t.Fatalf("round-trip mismatch: got=%x want=%x", again.Raw(), raw)
	}
}

func TestWriteMessageRejectsMismatchedFields(t *testing.T) {
	if _, err := WriteMessage(AgentSignResponse, SignRequest{}); !errors.Is(err, ErrMessageTypeMismatch) {
		t.Fatalf("expected ErrMessageTypeMismatch, got %v", err)
	}
	if _, err := WriteMessage(AgentSignResponse, Raw{Type: AgentSignResponse, Payload: []byte{1}}); !errors.Is(err, ErrMessageTypeMismatch) {
		t.Fatalf("expected ErrMessageTypeMismatch for raw typed payload, got %v", err)
	}
	if _, err := WriteMessage(AgentSuccess, nil); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if _, err := ReadMessage(nil); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields for nil message, got %v", err)
	}
}

func TestMessageNumberString(t *testing.T) {
	if got := AgentcSignRequest.String(); got != "SSH_AGENTC_SIGN_REQUEST" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := MessageNumber(250).String(); got != "UNKNOWN(250)" {
		t.Fatalf("unexpected unknown name %q", got)
	}
	if MessageNumber(250).Known() || !AgentFailure.Known() {
		t.Fatalf("Known mismatch")
	}
	flags := SignatureFlagRSASHA256 | SignatureFlagRSASHA512
	if !flags.Has(SignatureFlagRSASHA512) || SignatureFlags(0).Has(SignatureFlagRSASHA256) {
		t.Fatalf("flag check mismatch")
	}
}

// oversized claims a payload one byte too long for the frame length.
type oversized struct{}

func (oversized) MessageType() MessageNumber { return MessageNumber(200) }

func (oversized) encodedLen() int { return wire.MaxLength }

func (oversized) encode(*wire.Writer) error { return nil }

func TestWriteMessageRejectsOversizedPayload(t *testing.T) {
	_, err := WriteMessage(MessageNumber(200), oversized{})
	if !errors.Is(err, wire.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
