package protocol

import (
	"errors"

	"github.com/hnpl/libapps/internal/protocol/wire"
)

type decodeFunc func(r *wire.Reader) (Fields, error)

// decoders maps every message number with a typed shape to its reader.
// Numbers missing here decode as Raw.
var decoders = map[MessageNumber]decodeFunc{
	AgentFailure:              decodeEmpty(Failure{}),
	AgentSuccess:              decodeEmpty(Success{}),
	AgentcRequestIdentities:   decodeEmpty(IdentitiesRequest{}),
	AgentIdentitiesAnswer:     decodeIdentitiesAnswer,
	AgentcSignRequest:         decodeSignRequest,
	AgentSignResponse:         decodeSignResponse,
	AgentcRemoveIdentity:      decodeRemoveIdentity,
	AgentcRemoveAllIdentities: decodeEmpty(RemoveAllIdentities{}),
	AgentcAddSmartcardKey:     decodeAddSmartcardKey,
	AgentcRemoveSmartcardKey:  decodeRemoveSmartcardKey,
	AgentcLock:                decodeLock,
	AgentcUnlock:              decodeUnlock,
	AgentcExtension:           decodeExtension,
	AgentExtensionFailure:     decodeEmpty(ExtensionFailure{}),
}

// HasShape reports whether t decodes to a typed shape rather than Raw.
func HasShape(t MessageNumber) bool {
	_, ok := decoders[t]
	return ok
}

// ReadMessage decodes msg's payload into msg.Fields. Message numbers
// without a typed shape decode to Raw. Fixed-shape payloads with
// unconsumed bytes are rejected.
func ReadMessage(msg *Message) (*Message, error) {
	if msg == nil {
		return nil, ErrMissingFields
	}
	r := wire.NewReader(msg.payload)
	decode, ok := decoders[msg.Type]
	if !ok {
		msg.Fields = Raw{Type: msg.Type, Payload: r.ReadRest()}
		return msg, nil
	}

	fields, err := decode(r)
	if err != nil {
		return nil, &DecodeError{Type: msg.Type, Err: classify(err)}
	}
	if !r.EOM() {
		return nil, &DecodeError{Type: msg.Type, Err: ErrTrailingData}
	}
	msg.Fields = fields
	return msg, nil
}

func classify(err error) error {
	if errors.Is(err, wire.ErrShortRead) {
		return ErrTruncated
	}
	return err
}

func decodeEmpty(f Fields) decodeFunc {
	return func(*wire.Reader) (Fields, error) {
		return f, nil
	}
}

// identityMinLen is two empty strings.
const identityMinLen = 2 * wire.Uint32Len

func decodeIdentitiesAnswer(r *wire.Reader) (Fields, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(count)*identityMinLen > uint64(r.Len()) {
		return nil, ErrTruncated
	}
	ids := make([]Identity, 0, count)
	for i := uint32(0); i < count; i++ {
		keyBlob, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		comment, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		ids = append(ids, Identity{KeyBlob: keyBlob, Comment: comment})
	}
	return IdentitiesAnswer{Identities: ids}, nil
}

func decodeSignRequest(r *wire.Reader) (Fields, error) {
	keyBlob, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	data, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	flags, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return SignRequest{KeyBlob: keyBlob, Data: data, Flags: SignatureFlags(flags)}, nil
}

func decodeSignResponse(r *wire.Reader) (Fields, error) {
	sig, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return SignResponse{Signature: sig}, nil
}

func decodeRemoveIdentity(r *wire.Reader) (Fields, error) {
	keyBlob, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return RemoveIdentity{KeyBlob: keyBlob}, nil
}

func decodeAddSmartcardKey(r *wire.Reader) (Fields, error) {
	id, pin, err := readPair(r)
	if err != nil {
		return nil, err
	}
	return AddSmartcardKey{ReaderID: id, PIN: pin}, nil
}

func decodeRemoveSmartcardKey(r *wire.Reader) (Fields, error) {
	id, pin, err := readPair(r)
	if err != nil {
		return nil, err
	}
	return RemoveSmartcardKey{ReaderID: id, PIN: pin}, nil
}

func decodeLock(r *wire.Reader) (Fields, error) {
	pass, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return Lock{Passphrase: pass}, nil
}

func decodeUnlock(r *wire.Reader) (Fields, error) {
	pass, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return Unlock{Passphrase: pass}, nil
}

func decodeExtension(r *wire.Reader) (Fields, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	if len(name) == 0 {
		return nil, ErrInvalidLength
	}
	return Extension{Name: name, Contents: r.ReadRest()}, nil
}

func readPair(r *wire.Reader) ([]byte, []byte, error) {
	first, err := r.ReadString()
	if err != nil {
		return nil, nil, err
	}
	second, err := r.ReadString()
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}
