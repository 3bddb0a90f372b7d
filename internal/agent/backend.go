package agent

import (
	"context"
	"errors"

	"github.com/hnpl/libapps/internal/protocol"
)

var (
	ErrNotSupported = errors.New("agent: operation not supported")
	ErrKeyNotFound  = errors.New("agent: key not found")
)

// Backend lists keys and signs with them. Sign returns the SSH wire
// encoding of the signature (format string and blob).
type Backend interface {
	List(ctx context.Context) ([]protocol.Identity, error)
	Sign(ctx context.Context, keyBlob, data []byte, flags protocol.SignatureFlags) ([]byte, error)
}

// Remover is implemented by backends that can drop identities.
type Remover interface {
	Remove(ctx context.Context, keyBlob []byte) error
	RemoveAll(ctx context.Context) error
}

// SmartcardBackend is implemented by backends that can load keys from a
// smartcard reader.
type SmartcardBackend interface {
	AddSmartcardKey(ctx context.Context, readerID, pin []byte) error
	RemoveSmartcardKey(ctx context.Context, readerID, pin []byte) error
}
