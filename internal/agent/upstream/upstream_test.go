package upstream

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hnpl/libapps/internal/agent"
	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/session"
	"github.com/hnpl/libapps/internal/testutil/keytest"
	"github.com/hnpl/libapps/internal/testutil/testlog"
	"golang.org/x/crypto/ssh"
)

var fastBackoff = session.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}

func verify(t *testing.T, pub ssh.PublicKey, data, wire []byte) *ssh.Signature {
	t.Helper()
	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(wire, sig); err != nil {
		t.Fatalf("unmarshal signature: %v", err)
	}
	if err := pub.Verify(data, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return sig
}

func TestBackendListAndSign(t *testing.T) {
	testlog.Start(t)
	kr := keytest.NewKeyring(t)
	var dials atomic.Int32
	b := New(func(context.Context) (net.Conn, error) {
		dials.Add(1)
		return kr.ServePipe(t), nil
	}, fastBackoff)
	defer b.Close()

	ids, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != len(kr.Keys) {
		t.Fatalf("identities: got %d want %d", len(ids), len(kr.Keys))
	}

	data := []byte("session-id")
	for _, k := range kr.Keys {
		out, err := b.Sign(context.Background(), k.Blob(), data, 0)
		if err != nil {
			t.Fatalf("sign %s: %v", k.Comment, err)
		}
		verify(t, k.Public, data, out)
	}
	if dials.Load() != 1 {
		t.Fatalf("expected one lazy dial, got %d", dials.Load())
	}
}

func TestBackendSignRSAFlags(t *testing.T) {
	testlog.Start(t)
	kr := keytest.NewKeyring(t)
	b := NewFromAgent(kr.Agent)
	k := kr.Key(t, "rsa@test")

	cases := []struct {
		flags  protocol.SignatureFlags
		format string
	}{
		{protocol.SignatureFlagRSASHA256, ssh.KeyAlgoRSASHA256},
		{protocol.SignatureFlagRSASHA512, ssh.KeyAlgoRSASHA512},
	}
	for _, tc := range cases {
		out, err := b.Sign(context.Background(), k.Blob(), []byte("data"), tc.flags)
		if err != nil {
			t.Fatalf("sign flags=%d: %v", tc.flags, err)
		}
		if sig := verify(t, k.Public, []byte("data"), out); sig.Format != tc.format {
			t.Fatalf("flags=%d: format %q want %q", tc.flags, sig.Format, tc.format)
		}
	}
}

func TestBackendSignUnknownKey(t *testing.T) {
	kr := keytest.NewKeyring(t)
	b := NewFromAgent(kr.Agent)

	if _, err := b.Sign(context.Background(), []byte("not a key"), []byte("x"), 0); !errors.Is(err, agent.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	other := keytest.NewKeyring(t)
	if _, err := b.Sign(context.Background(), other.Keys[0].Blob(), []byte("x"), 0); err == nil {
		t.Fatalf("signing with a key the upstream lacks should fail")
	}
}

func TestBackendKeepsConnectionAfterFailureReply(t *testing.T) {
	testlog.Start(t)
	kr := keytest.NewKeyring(t)
	var dials atomic.Int32
	b := New(func(context.Context) (net.Conn, error) {
		dials.Add(1)
		return kr.ServePipe(t), nil
	}, fastBackoff)
	defer b.Close()

	other := keytest.NewKeyring(t)
	for i := 0; i < 2; i++ {
		if _, err := b.Sign(context.Background(), other.Keys[0].Blob(), []byte("x"), 0); err == nil {
			t.Fatalf("signing with a key the upstream lacks should fail")
		}
	}
	if _, err := b.List(context.Background()); err != nil {
		t.Fatalf("list after failure reply: %v", err)
	}
	if dials.Load() != 1 {
		t.Fatalf("failure replies should not redial, got %d dials", dials.Load())
	}
}

func TestBackendJittersRetries(t *testing.T) {
	b := New(UnixDialer("", time.Second), session.BackoffConfig{InitialDelay: time.Second, Multiplier: 1, Jitter: true})
	if b.rng == nil {
		t.Fatalf("backend has no jitter source")
	}
	seen := map[time.Duration]bool{}
	for i := 0; i < 16; i++ {
		seen[session.NextBackoffDelay(b.backoff, 2, b.rng)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("jittered delays never varied: %v", seen)
	}
}

func TestBackendRemove(t *testing.T) {
	kr := keytest.NewKeyring(t)
	b := NewFromAgent(kr.Agent)
	ctx := context.Background()

	if err := b.Remove(ctx, kr.Keys[0].Blob()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids, _ := b.List(ctx)
	if len(ids) != len(kr.Keys)-1 {
		t.Fatalf("after remove: %d identities", len(ids))
	}
	if err := b.RemoveAll(ctx); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	ids, _ = b.List(ctx)
	if len(ids) != 0 {
		t.Fatalf("after remove all: %d identities", len(ids))
	}
}

func TestBackendRetriesDial(t *testing.T) {
	testlog.Start(t)
	kr := keytest.NewKeyring(t)
	var dials atomic.Int32
	b := New(func(context.Context) (net.Conn, error) {
		if dials.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return kr.ServePipe(t), nil
	}, fastBackoff, WithAttempts(3))
	defer b.Close()

	if _, err := b.List(context.Background()); err != nil {
		t.Fatalf("list after retries: %v", err)
	}
	if dials.Load() != 3 {
		t.Fatalf("dials: got %d want 3", dials.Load())
	}
}

func TestBackendReconnectsAfterFailure(t *testing.T) {
	testlog.Start(t)
	kr := keytest.NewKeyring(t)
	var conns []net.Conn
	b := New(func(context.Context) (net.Conn, error) {
		c := kr.ServePipe(t)
		conns = append(conns, c)
		return c, nil
	}, fastBackoff)
	defer b.Close()

	if _, err := b.List(context.Background()); err != nil {
		t.Fatalf("first list: %v", err)
	}
	_ = conns[0].Close()
	if _, err := b.List(context.Background()); err == nil {
		t.Fatalf("list over a closed connection should fail")
	}
	if _, err := b.List(context.Background()); err != nil {
		t.Fatalf("list after reconnect: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("dials: got %d want 2", len(conns))
	}
}

func TestBackendObserverAndNoUpstream(t *testing.T) {
	var ops []string
	var lastErr error
	b := New(UnixDialer("", time.Second), fastBackoff, WithAttempts(1), WithObserver(func(op string, _ time.Duration, err error) {
		ops = append(ops, op)
		lastErr = err
	}))

	_, err := b.List(context.Background())
	if !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("expected ErrNoUpstream, got %v", err)
	}
	if len(ops) != 1 || ops[0] != "list" || !errors.Is(lastErr, ErrNoUpstream) {
		t.Fatalf("observer saw ops=%v err=%v", ops, lastErr)
	}
}

func TestBackendHonorsContext(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	// Swallow requests without answering.
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	b := New(func(context.Context) (net.Conn, error) { return client, nil }, fastBackoff)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.List(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
