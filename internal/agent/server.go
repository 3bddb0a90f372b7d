package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/hnpl/libapps/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Server accepts agent connections and serves each on its own goroutine.
type Server struct {
	agent *Agent
	cfg   session.Config

	mu    sync.Mutex
	conns map[*session.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(a *Agent, cfg session.Config) *Server {
	return &Server{
		agent: a,
		cfg:   cfg,
		conns: make(map[*session.Conn]struct{}),
	}
}

// Serve runs the accept loop until ctx ends or ln fails. Open sessions
// are closed and waited for before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.wg.Wait()
	defer s.closeAll()
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeAll()
	})
	defer stop()

	log.Info().Str("addr", ln.Addr().String()).Msg("agent listening")
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.ServeConn(ctx, nc)
		}()
	}
}

// ServeConn serves a single connection until it ends.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) error {
	c := session.NewConn(nc, s.cfg, s.agent.metrics)
	s.track(c)
	defer s.untrack(c)
	defer c.Close()

	s.agent.metrics.ConnectionOpened()
	defer s.agent.metrics.ConnectionClosed()

	if err := c.Serve(ctx, s.agent); err != nil && ctx.Err() == nil {
		log.Debug().Str("conn", c.ID()).Err(err).Msg("session ended")
		return err
	}
	return nil
}

func (s *Server) track(c *session.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *session.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// ListenUnix listens on a unix socket at path, replacing a stale socket
// file. The socket is restricted to the owner.
func ListenUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("agent: socket dir: %w", err)
	}
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("agent: %s exists and is not a socket", path)
		}
		if conn, err := net.Dial("unix", path); err == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("agent: %s is in use", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("agent: remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("agent: chmod socket: %w", err)
	}
	return ln, nil
}
