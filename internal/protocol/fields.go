package protocol

import "github.com/hnpl/libapps/internal/protocol/wire"

// Fields is the decoded payload of one message. The set of shapes is
// closed: only this package can implement it.
type Fields interface {
	MessageType() MessageNumber
	encodedLen() int
	encode(w *wire.Writer) error
}

// Identity is one key entry of an identities answer.
type Identity struct {
	KeyBlob []byte
	Comment []byte
}

type Failure struct{}

type Success struct{}

type IdentitiesRequest struct{}

type IdentitiesAnswer struct {
	Identities []Identity
}

type SignRequest struct {
	KeyBlob []byte
	Data    []byte
	Flags   SignatureFlags
}

type SignResponse struct {
	Signature []byte
}

type RemoveIdentity struct {
	KeyBlob []byte
}

type RemoveAllIdentities struct{}

type AddSmartcardKey struct {
	ReaderID []byte
	PIN      []byte
}

type RemoveSmartcardKey struct {
	ReaderID []byte
	PIN      []byte
}

type Lock struct {
	Passphrase []byte
}

type Unlock struct {
	Passphrase []byte
}

// Extension is a vendor extension request. Contents is everything after
// the name; its layout is owned by the extension.
type Extension struct {
	Name     []byte
	Contents []byte
}

type ExtensionFailure struct{}

// Raw carries the payload of a message number without a typed shape,
// so well-framed messages round-trip unchanged.
type Raw struct {
	Type    MessageNumber
	Payload []byte
}

func (Failure) MessageType() MessageNumber             { return AgentFailure }
func (Success) MessageType() MessageNumber             { return AgentSuccess }
func (IdentitiesRequest) MessageType() MessageNumber   { return AgentcRequestIdentities }
func (IdentitiesAnswer) MessageType() MessageNumber    { return AgentIdentitiesAnswer }
func (SignRequest) MessageType() MessageNumber         { return AgentcSignRequest }
func (SignResponse) MessageType() MessageNumber        { return AgentSignResponse }
func (RemoveIdentity) MessageType() MessageNumber      { return AgentcRemoveIdentity }
func (RemoveAllIdentities) MessageType() MessageNumber { return AgentcRemoveAllIdentities }
func (AddSmartcardKey) MessageType() MessageNumber     { return AgentcAddSmartcardKey }
func (RemoveSmartcardKey) MessageType() MessageNumber  { return AgentcRemoveSmartcardKey }
func (Lock) MessageType() MessageNumber                { return AgentcLock }
func (Unlock) MessageType() MessageNumber              { return AgentcUnlock }
func (Extension) MessageType() MessageNumber           { return AgentcExtension }
func (ExtensionFailure) MessageType() MessageNumber    { return AgentExtensionFailure }
func (r Raw) MessageType() MessageNumber               { return r.Type }

func (Failure) encodedLen() int             { return 0 }
func (Success) encodedLen() int             { return 0 }
func (IdentitiesRequest) encodedLen() int   { return 0 }
func (RemoveAllIdentities) encodedLen() int { return 0 }
func (ExtensionFailure) encodedLen() int    { return 0 }

func (Failure) encode(*wire.Writer) error             { return nil }
func (Success) encode(*wire.Writer) error             { return nil }
func (IdentitiesRequest) encode(*wire.Writer) error   { return nil }
func (RemoveAllIdentities) encode(*wire.Writer) error { return nil }
func (ExtensionFailure) encode(*wire.Writer) error    { return nil }

func (a IdentitiesAnswer) encodedLen() int {
	n := wire.Uint32Len
	for _, id := range a.Identities {
		n += wire.StringLen(id.KeyBlob) + wire.StringLen(id.Comment)
	}
	return n
}

func (a IdentitiesAnswer) encode(w *wire.Writer) error {
	if err := w.WriteLength(len(a.Identities)); err != nil {
		return err
	}
	for _, id := range a.Identities {
		if err := w.WriteString(id.KeyBlob); err != nil {
			return err
		}
		if err := w.WriteString(id.Comment); err != nil {
			return err
		}
	}
	return nil
}

func (s SignRequest) encodedLen() int {
	return wire.StringLen(s.KeyBlob) + wire.StringLen(s.Data) + wire.Uint32Len
}

func (s SignRequest) encode(w *wire.Writer) error {
	if err := w.WriteString(s.KeyBlob); err != nil {
		return err
	}
	if err := w.WriteString(s.Data); err != nil {
		return err
	}
	w.WriteUint32(uint32(s.Flags))
	return nil
}

func (s SignResponse) encodedLen() int {
	return wire.StringLen(s.Signature)
}
func (s SignResponse) encode(w *wire.Writer) error {
	return w.WriteString(s.Signature)
}

func (r RemoveIdentity) encodedLen() int {
	return wire.StringLen(r.KeyBlob)
}
func (r RemoveIdentity) encode(w *wire.Writer) error {
	return w.WriteString(r.KeyBlob)
}

func (a AddSmartcardKey) encodedLen() int {
	return wire.StringLen(a.ReaderID) + wire.StringLen(a.PIN)
}

func (a AddSmartcardKey) encode(w *wire.Writer) error {
	return writeStrings(w, a.ReaderID, a.PIN)
}

func (r RemoveSmartcardKey) encodedLen() int {
	return wire.StringLen(r.ReaderID) + wire.StringLen(r.PIN)
}

func (r RemoveSmartcardKey) encode(w *wire.Writer) error {
	return writeStrings(w, r.ReaderID, r.PIN)
}

func (l Lock) encodedLen() int {
	return wire.StringLen(l.Passphrase)
}
func (l Lock) encode(w *wire.Writer) error {
	return w.WriteString(l.Passphrase)
}

func (u Unlock) encodedLen() int {
	return wire.StringLen(u.Passphrase)
}
func (u Unlock) encode(w *wire.Writer) error {
	return w.WriteString(u.Passphrase)
}

func (e Extension) encodedLen() int {
	return wire.StringLen(e.Name) + len(e.Contents)
}

func (e Extension) encode(w *wire.Writer) error {
	if err := w.WriteString(e.Name); err != nil {
		return err
	}
	w.WriteRaw(e.Contents)
	return nil
}

func (r Raw) encodedLen() int {
	return len(r.Payload)
}

func (r Raw) encode(w *wire.Writer) error {
	w.WriteRaw(r.Payload)
	return nil
}

func writeStrings(w *wire.Writer, values ...[]byte) error {
	for _, v := range values {
		if err := w.WriteString(v); err != nil {
			return err
		}
	}
	return nil
}
