package keytest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"

	"golang.org/x/crypto/ssh"
	sshagent "golang.org/x/crypto/ssh/agent"
)

// Key is one generated test key.
type Key struct {
	Comment string
	Private any
	Public  ssh.PublicKey
}

// Blob returns the SSH wire encoding of the public key.
func (k Key) Blob() []byte {
	return k.Public.Marshal()
}

// Keyring is an in-process agent preloaded with one key per algorithm.
type Keyring struct {
	Agent sshagent.ExtendedAgent
	Keys  []Key
}

// NewKeyring generates ed25519, ecdsa-p256 and rsa-2048 keys and loads
// them into a fresh x/crypto keyring.
func NewKeyring(t testing.TB) *Keyring {
	t.Helper()

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	kr := &Keyring{Agent: sshagent.NewKeyring().(sshagent.ExtendedAgent)}
	for _, k := range []struct {
		comment string
		priv    any
	}{
		{"ed25519@test", edKey},
		{"nistp256@test", ecKey},
		{"rsa@test", rsaKey},
	} {
		if err := kr.Agent.Add(sshagent.AddedKey{PrivateKey: k.priv, Comment: k.comment}); err != nil {
			t.Fatalf("add %s: %v", k.comment, err)
		}
		signer, err := ssh.NewSignerFromKey(k.priv)
		if err != nil {
			t.Fatalf("signer %s: %v", k.comment, err)
		}
		kr.Keys = append(kr.Keys, Key{Comment: k.comment, Private: k.priv, Public: signer.PublicKey()})
	}
	return kr
}

// Key returns the key with comment, failing the test if absent.
func (kr *Keyring) Key(t testing.TB, comment string) Key {
	t.Helper()
	for _, k := range kr.Keys {
		if k.Comment == comment {
			return k
		}
	}
	t.Fatalf("no test key %q", comment)
	return Key{}
}

// ServePipe serves the keyring on one end of a net.Pipe and returns the
// other end. The pipe is closed when the test ends.
func (kr *Keyring) ServePipe(t testing.TB) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	go func() {
		_ = sshagent.ServeAgent(kr.Agent, server)
	}()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client
}
