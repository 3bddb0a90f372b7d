package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("session: connection closed")

// Handler answers one decoded request. A nil response is sent as
// AGENT_FAILURE.
type Handler interface {
	HandleMessage(ctx context.Context, msg *protocol.Message) protocol.Fields
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *protocol.Message) protocol.Fields

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *protocol.Message) protocol.Fields {
	return f(ctx, msg)
}

// Observer receives per-frame events. Implementations must be safe for
// concurrent use across connections.
type Observer interface {
	FrameRead(t protocol.MessageNumber, size int)
	FrameWritten(t protocol.MessageNumber, size int)
	FrameFailed(err error)
	DecodeFailed(t protocol.MessageNumber, err error)
}

type nopObserver struct{}

func (nopObserver) FrameRead(protocol.MessageNumber, int) {}

func (nopObserver) FrameWritten(protocol.MessageNumber, int) {}

func (nopObserver) FrameFailed(error) {}

func (nopObserver) DecodeFailed(protocol.MessageNumber, error) {}

var connSeq atomic.Uint64

// Conn carries agent messages over one stream connection. Reads and
// writes are not safe for concurrent use; one exchange runs at a time.
type Conn struct {
	nc     net.Conn
	cfg    Config
	id     string
	obs    Observer
	log    zerolog.Logger
	closed atomic.Bool
}

// NewConn wraps nc. obs may be nil.
func NewConn(nc net.Conn, cfg Config, obs Observer) *Conn {
	if cfg.Limits.MaxFrameBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	id := fmt.Sprintf("c%d", connSeq.Add(1))
	return &Conn{
		nc:  nc,
		cfg: cfg,
		id:  id,
		obs: obs,
		log: log.With().Str("conn", id).Logger(),
	}
}

// ID returns the connection identifier used in log lines.
func (c *Conn) ID() string {
	return c.id
}

// Close closes the underlying connection. It is safe to call twice.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close()
}

// ReadFrame reads one frame, honoring the idle timeout.
func (c *Conn) ReadFrame() (frame.Frame, error) {
	if c.closed.Load() {
		return frame.Frame{}, ErrClosed
	}
	if c.cfg.IdleTimeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	}
	f, err := frame.ReadFrame(c.nc, c.cfg.Limits)
	if err != nil {
		if errors.Is(err, frame.ErrInvalidFrame) {
			c.obs.FrameFailed(err)
		}
		return frame.Frame{}, err
	}
	c.obs.FrameRead(protocol.MessageNumber(f.Type), f.Len())
	return f, nil
}

// ReadMessage reads and decodes one message. Decode failures are
// returned as *protocol.DecodeError and leave the stream aligned on the
// next frame.
func (c *Conn) ReadMessage() (*protocol.Message, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	msg, err := protocol.FromFrame(f)
	if err != nil {
		c.obs.DecodeFailed(protocol.MessageNumber(f.Type), err)
		return nil, err
	}
	return msg, nil
}

// WriteMessage writes msg as one frame, honoring the write timeout.
func (c *Conn) WriteMessage(msg *protocol.Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	f := msg.Frame()
	if err := frame.WriteFrame(c.nc, f, c.cfg.Limits); err != nil {
		return err
	}
	c.obs.FrameWritten(msg.Type, f.Len())
	return nil
}

// Send encodes f and writes it.
func (c *Conn) Send(f protocol.Fields) error {
	msg, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return c.WriteMessage(msg)
}

// RoundTrip sends req and reads the reply. ctx cancellation interrupts a
// blocked read or write.
func (c *Conn) RoundTrip(ctx context.Context, req protocol.Fields) (*protocol.Message, error) {
	stop := c.interruptOn(ctx)
	defer stop()

	if err := c.Send(req); err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	resp, err := c.ReadMessage()
	if err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	return resp, nil
}

// Serve reads requests until the peer closes, a frame error occurs or
// ctx ends. Each request is answered before the next is read. A payload
// that fails to decode is answered with AGENT_FAILURE; a malformed frame
// ends the session since the stream can no longer be trusted.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	stop := c.interruptOn(ctx)
	defer stop()
	c.log.Debug().Msg("session started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := c.ReadMessage()
		var decErr *protocol.DecodeError
		switch {
		case err == nil:
		case errors.As(err, &decErr):
			c.log.Warn().Str("type", decErr.Type.String()).Err(decErr.Err).Msg("decode failed")
			if err := c.Send(protocol.Failure{}); err != nil {
				return c.ctxErr(ctx, err)
			}
			continue
		case errors.Is(err, io.EOF):
			c.log.Debug().Msg("session closed by peer")
			return nil
		default:
			err = c.ctxErr(ctx, err)
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn().Err(err).Msg("session read failed")
			}
			return err
		}

		resp := h.HandleMessage(ctx, msg)
		if resp == nil {
			resp = protocol.Failure{}
		}
		c.log.Debug().
			Str("type", msg.Type.String()).
			Str("reply", resp.MessageType().String()).
			Int("bytes", len(msg.Payload())).
			Msg("request handled")
		if err := c.Send(resp); err != nil {
			return c.ctxErr(ctx, fmt.Errorf("session: reply %s: %w", resp.MessageType(), err))
		}
	}
}

// interruptOn expires the connection deadlines once ctx is done.
func (c *Conn) interruptOn(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Unix(1, 0))
	})
}

func (c *Conn) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
