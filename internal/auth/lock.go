package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrLocked        = errors.New("auth: agent locked")
	ErrAlreadyLocked = errors.New("auth: agent already locked")
	ErrNotLocked     = errors.New("auth: agent not locked")
	ErrWeakPass      = errors.New("auth: passphrase too short")
)

// Lock is the agent lock state. Only a digest of the passphrase is kept
// while locked.
type Lock struct {
	mu     sync.Mutex
	minLen int
	digest *[sha256.Size]byte
}

// NewLock returns an unlocked Lock requiring passphrases of at least
// minLen bytes.
func NewLock(minLen int) *Lock {
	if minLen < 0 {
		minLen = 0
	}
	return &Lock{minLen: minLen}
}

// Locked reports whether the agent is locked.
func (l *Lock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.digest != nil
}

// Check returns ErrLocked while the agent is locked.
func (l *Lock) Check() error {
	if l.Locked() {
		return ErrLocked
	}
	return nil
}

// Lock locks the agent with passphrase.
func (l *Lock) Lock(passphrase []byte) error {
	if len(passphrase) < l.minLen {
		return fmt.Errorf("%w: need %d bytes", ErrWeakPass, l.minLen)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.digest != nil {
		return ErrAlreadyLocked
	}
	d := sha256.Sum256(passphrase)
	l.digest = &d
	return nil
}

// Unlock unlocks the agent if passphrase matches the one used to lock.
func (l *Lock) Unlock(passphrase []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.digest == nil {
		return ErrNotLocked
	}
	d := sha256.Sum256(passphrase)
	if subtle.ConstantTimeCompare(d[:], l.digest[:]) != 1 {
		return ErrUnauthorized
	}
	l.digest = nil
	return nil
}
