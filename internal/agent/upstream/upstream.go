// Package upstream forwards agent requests to another SSH agent, such
// as the one holding a hardware token, over its unix socket.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/hnpl/libapps/internal/agent"
	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	sshagent "golang.org/x/crypto/ssh/agent"
)

var ErrNoUpstream = errors.New("upstream: no agent configured")

// Dialer opens a connection to the upstream agent.
type Dialer func(ctx context.Context) (net.Conn, error)

// UnixDialer dials the agent socket at path.
func UnixDialer(path string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		if path == "" {
			return nil, ErrNoUpstream
		}
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "unix", path)
	}
}

// Observer is told about each upstream call.
type Observer func(op string, elapsed time.Duration, err error)

type Option func(*Backend)

func WithObserver(fn Observer) Option {
	return func(b *Backend) {
		if fn != nil {
			b.observe = fn
		}
	}
}

// WithAttempts sets how many dials are tried before a call fails.
func WithAttempts(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.attempts = n
		}
	}
}

// Backend is an agent.Backend backed by an upstream agent. The
// connection is opened on first use and reopened after a failure.
type Backend struct {
	dial     Dialer
	backoff  session.BackoffConfig
	attempts int
	observe  Observer

	mu     sync.Mutex
	rng    *rand.Rand
	conn   *trackedConn
	client sshagent.ExtendedAgent
}

var (
	_ agent.Backend = (*Backend)(nil)
	_ agent.Remover = (*Backend)(nil)
)

// New returns a Backend that dials lazily with dial.
func New(dial Dialer, backoff session.BackoffConfig, opts ...Option) *Backend {
	b := &Backend{
		dial:     dial,
		backoff:  backoff,
		attempts: 3,
		observe:  func(string, time.Duration, error) {},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromAgent wraps an agent that is already connected or in process,
// such as sshagent.NewKeyring().
func NewFromAgent(a sshagent.ExtendedAgent, opts ...Option) *Backend {
	b := New(nil, session.BackoffConfig{}, opts...)
	b.client = a
	return b
}

func (b *Backend) List(ctx context.Context) ([]protocol.Identity, error) {
	var ids []protocol.Identity
	err := b.do(ctx, "list", func(a sshagent.ExtendedAgent) error {
		keys, err := a.List()
		if err != nil {
			return err
		}
		ids = make([]protocol.Identity, 0, len(keys))
		for _, k := range keys {
			ids = append(ids, protocol.Identity{KeyBlob: k.Blob, Comment: []byte(k.Comment)})
		}
		return nil
	})
	return ids, err
}

func (b *Backend) Sign(ctx context.Context, keyBlob, data []byte, flags protocol.SignatureFlags) ([]byte, error) {
	pub, err := ssh.ParsePublicKey(keyBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agent.ErrKeyNotFound, err)
	}
	var out []byte
	err = b.do(ctx, "sign", func(a sshagent.ExtendedAgent) error {
		sig, err := a.SignWithFlags(pub, data, sshagent.SignatureFlags(flags))
		if err != nil {
			return err
		}
		out = ssh.Marshal(sig)
		return nil
	})
	return out, err
}

func (b *Backend) Remove(ctx context.Context, keyBlob []byte) error {
	pub, err := ssh.ParsePublicKey(keyBlob)
	if err != nil {
		return fmt.Errorf("%w: %v", agent.ErrKeyNotFound, err)
	}
	return b.do(ctx, "remove", func(a sshagent.ExtendedAgent) error {
		return a.Remove(pub)
	})
}

func (b *Backend) RemoveAll(ctx context.Context) error {
	return b.do(ctx, "remove_all", func(a sshagent.ExtendedAgent) error {
		return a.RemoveAll()
	})
}

// Close drops the upstream connection, if any.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resetLocked()
}

// do runs fn against the upstream agent. The x/crypto client has no
// context support, so ctx cancellation expires the connection deadline.
func (b *Backend) do(ctx context.Context, op string, fn func(sshagent.ExtendedAgent) error) error {
	start := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.ensureLocked(ctx)
	if err == nil {
		conn := b.conn
		if conn != nil {
			stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
			err = fn(b.client)
			if stop() {
				_ = conn.SetDeadline(time.Time{})
			} else if err == nil {
				// Cancelled after the reply; the deadline may be expired.
				_ = b.resetLocked()
			}
		} else {
			err = fn(b.client)
		}
		if err != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil && conn != nil && (conn.failed || ctx.Err() != nil) {
			// The stream may be mid-frame; start over on the next call.
			// A FAILURE reply leaves it in sync.
			_ = b.resetLocked()
		}
	}
	b.observe(op, time.Since(start), err)
	if err != nil {
		log.Debug().Str("op", op).Err(err).Msg("upstream call failed")
		return fmt.Errorf("upstream: %s: %w", op, err)
	}
	return nil
}

func (b *Backend) ensureLocked(ctx context.Context) error {
	if b.client != nil {
		return nil
	}
	if b.dial == nil {
		return ErrNoUpstream
	}
	return session.Retry(ctx, b.backoff, b.attempts, b.rng, func(ctx context.Context) error {
		nc, err := b.dial(ctx)
		if err != nil {
			return err
		}
		conn := &trackedConn{Conn: nc}
		b.conn = conn
		b.client = sshagent.NewClient(conn)
		log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("upstream connected")
		return nil
	})
}

func (b *Backend) resetLocked() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.client = nil
	return err
}

// trackedConn records whether a read or write on the connection failed.
// The x/crypto client flattens transport errors into strings.
type trackedConn struct {
	net.Conn
	failed bool
}

func (c *trackedConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		c.failed = true
	}
	return n, err
}

func (c *trackedConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if err != nil {
		c.failed = true
	}
	return n, err
}
