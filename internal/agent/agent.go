package agent

import (
	"context"
	"errors"
	"time"

	"github.com/hnpl/libapps/internal/auth"
	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Request outcomes reported to Metrics.
const (
	OutcomeOK          = "ok"
	OutcomeFailure     = "failure"
	OutcomeLocked      = "locked"
	OutcomeUnsupported = "unsupported"
)

// Metrics receives agent events. It extends session.Observer with
// connection and request accounting.
type Metrics interface {
	session.Observer
	ConnectionOpened()
	ConnectionClosed()
	RequestHandled(t protocol.MessageNumber, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) FrameRead(protocol.MessageNumber, int) {}

func (nopMetrics) FrameWritten(protocol.MessageNumber, int) {}

func (nopMetrics) FrameFailed(error) {}

func (nopMetrics) DecodeFailed(protocol.MessageNumber, error) {}

func (nopMetrics) ConnectionOpened() {}

func (nopMetrics) ConnectionClosed() {}

func (nopMetrics) RequestHandled(protocol.MessageNumber, string, time.Duration) {}

type Option func(*Agent)

// WithLock replaces the default lock, which accepts any passphrase.
func WithLock(l *auth.Lock) Option {
	return func(a *Agent) {
		if l != nil {
			a.lock = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(a *Agent) {
		if m != nil {
			a.metrics = m
		}
	}
}

// Agent answers decoded requests using a Backend. It implements
// session.Handler and is safe for concurrent use.
type Agent struct {
	backend Backend
	lock    *auth.Lock
	metrics Metrics
}

func New(backend Backend, opts ...Option) *Agent {
	a := &Agent{
		backend: backend,
		lock:    auth.NewLock(0),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Locked reports whether the agent is locked.
func (a *Agent) Locked() bool {
	return a.lock.Locked()
}

// HandleMessage answers one request.
func (a *Agent) HandleMessage(ctx context.Context, msg *protocol.Message) protocol.Fields {
	start := time.Now()
	resp, err := a.handle(ctx, msg.Fields)
	outcome := OutcomeOK
	if err != nil {
		outcome = classifyOutcome(err)
		log.Debug().Str("type", msg.Type.String()).Str("outcome", outcome).Err(err).Msg("request refused")
		resp = protocol.Failure{}
	}
	a.metrics.RequestHandled(msg.Type, outcome, time.Since(start))
	return resp
}

func (a *Agent) handle(ctx context.Context, fields protocol.Fields) (protocol.Fields, error) {
	switch req := fields.(type) {
	case protocol.IdentitiesRequest:
		return a.list(ctx)
	case protocol.SignRequest:
		return a.sign(ctx, req)
	case protocol.Lock:
		if err := a.lock.Lock(req.Passphrase); err != nil {
			return nil, err
		}
		log.Info().Msg("agent locked")
		return protocol.Success{}, nil
	case protocol.Unlock:
		if err := a.lock.Unlock(req.Passphrase); err != nil {
			return nil, err
		}
		log.Info().Msg("agent unlocked")
		return protocol.Success{}, nil
	case protocol.RemoveIdentity:
		return a.withRemover(func(r Remover) error { return r.Remove(ctx, req.KeyBlob) })
	case protocol.RemoveAllIdentities:
		return a.withRemover(func(r Remover) error { return r.RemoveAll(ctx) })
	case protocol.AddSmartcardKey:
		return a.withSmartcard(func(s SmartcardBackend) error {
			return s.AddSmartcardKey(ctx, req.ReaderID, req.PIN)
		})
	case protocol.RemoveSmartcardKey:
		return a.withSmartcard(func(s SmartcardBackend) error {
			return s.RemoveSmartcardKey(ctx, req.ReaderID, req.PIN)
		})
	default:
		// Extensions, key additions and replies sent as requests.
		return nil, ErrNotSupported
	}
}

func (a *Agent) list(ctx context.Context) (protocol.Fields, error) {
	if a.lock.Locked() {
		return protocol.IdentitiesAnswer{Identities: []protocol.Identity{}}, nil
	}
	ids, err := a.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []protocol.Identity{}
	}
	return protocol.IdentitiesAnswer{Identities: ids}, nil
}

func (a *Agent) sign(ctx context.Context, req protocol.SignRequest) (protocol.Fields, error) {
	if err := a.lock.Check(); err != nil {
		return nil, err
	}
	sig, err := a.backend.Sign(ctx, req.KeyBlob, req.Data, req.Flags)
	if err != nil {
		return nil, err
	}
	return protocol.SignResponse{Signature: sig}, nil
}

func (a *Agent) withRemover(fn func(Remover) error) (protocol.Fields, error) {
	if err := a.lock.Check(); err != nil {
		return nil, err
	}
	r, ok := a.backend.(Remover)
	if !ok {
		return nil, ErrNotSupported
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	return protocol.Success{}, nil
}

func (a *Agent) withSmartcard(fn func(SmartcardBackend) error) (protocol.Fields, error) {
	if err := a.lock.Check(); err != nil {
		return nil, err
	}
	s, ok := a.backend.(SmartcardBackend)
	if !ok {
		return nil, ErrNotSupported
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	return protocol.Success{}, nil
}

func classifyOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotSupported):
		return OutcomeUnsupported
	case errors.Is(err, auth.ErrLocked):
		return OutcomeLocked
	default:
		return OutcomeFailure
	}
}
