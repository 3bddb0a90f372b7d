package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/frame"
	"github.com/hnpl/libapps/internal/testutil/testlog"
)

type countingObserver struct {
	mu      sync.Mutex
	read    int
	written int
	frames  int
	decodes int
}

func (o *countingObserver) FrameRead(protocol.MessageNumber, int) {
	o.mu.Lock()
	o.read++
	o.mu.Unlock()
}

func (o *countingObserver) FrameWritten(protocol.MessageNumber, int) {
	o.mu.Lock()
	o.written++
	o.mu.Unlock()
}

func (o *countingObserver) FrameFailed(error) {
	o.mu.Lock()
	o.frames++
	o.mu.Unlock()
}

func (o *countingObserver) DecodeFailed(protocol.MessageNumber, error) {
	o.mu.Lock()
	o.decodes++
	o.mu.Unlock()
}

func echoIdentities(_ context.Context, msg *protocol.Message) protocol.Fields {
	switch msg.Fields.(type) {
	case protocol.IdentitiesRequest:
		return protocol.IdentitiesAnswer{Identities: []protocol.Identity{
			{KeyBlob: []byte("blob"), Comment: []byte("card")},
		}}
	case protocol.Lock:
		return protocol.Success{}
	default:
		return nil
	}
}

func startServer(t *testing.T, ctx context.Context, obs Observer) (*Conn, <-chan error) {
	t.Helper()
	a, b := net.Pipe()
	server := NewConn(a, DefaultConfig(), obs)
	client := NewConn(b, DefaultConfig(), nil)
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, HandlerFunc(echoIdentities))
		_ = server.Close()
	}()
	t.Cleanup(func() { _ = client.Close() })
	return client, done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return")
		return nil
	}
}

func TestServeAnswersRequests(t *testing.T) {
	testlog.Start(t)
	obs := &countingObserver{}
	client, done := startServer(t, context.Background(), obs)

	resp, err := client.RoundTrip(context.Background(), protocol.IdentitiesRequest{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	answer, ok := resp.Fields.(protocol.IdentitiesAnswer)
	if !ok || len(answer.Identities) != 1 || string(answer.Identities[0].Comment) != "card" {
		t.Fatalf("unexpected reply: %#v", resp.Fields)
	}

	resp, err = client.RoundTrip(context.Background(), protocol.RemoveAllIdentities{})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.Type != protocol.AgentFailure {
		t.Fatalf("nil handler reply should be FAILURE, got %s", resp.Type)
	}

	_ = client.Close()
	if err := waitServe(t, done); err != nil {
		t.Fatalf("Serve after peer close: %v", err)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.read != 2 || obs.written != 2 {
		t.Fatalf("observer counts read=%d written=%d", obs.read, obs.written)
	}
}

func TestServeRepliesFailureOnDecodeError(t *testing.T) {
	testlog.Start(t)
	obs := &countingObserver{}
	client, done := startServer(t, context.Background(), obs)

	// SIGN_REQUEST whose key blob length runs past the payload.
	bad := protocol.NewMessage(protocol.AgentcSignRequest, []byte{0, 0, 0, 9, 'x'})
	if err := client.WriteMessage(bad); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != protocol.AgentFailure {
		t.Fatalf("expected FAILURE, got %s", resp.Type)
	}

	resp, err = client.RoundTrip(context.Background(), protocol.Lock{Passphrase: []byte("pw")})
	if err != nil {
		t.Fatalf("session should survive decode error: %v", err)
	}
	if resp.Type != protocol.AgentSuccess {
		t.Fatalf("expected SUCCESS, got %s", resp.Type)
	}

	_ = client.Close()
	_ = waitServe(t, done)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.decodes != 1 {
		t.Fatalf("decode failures: got %d want 1", obs.decodes)
	}
}

func TestServeClosesOnFrameError(t *testing.T) {
	testlog.Start(t)
	obs := &countingObserver{}
	a, b := net.Pipe()
	defer b.Close()
	server := NewConn(a, DefaultConfig(), obs)
	done := make(chan error, 1)
	go func() { done <- server.Serve(context.Background(), HandlerFunc(echoIdentities)) }()

	if _, err := b.Write([]byte{0x7f, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := waitServe(t, done)
	if !errors.Is(err, frame.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if obs.frames != 1 {
		t.Fatalf("frame failures: got %d want 1", obs.frames)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, done := startServer(t, ctx, nil)

	cancel()
	if err := waitServe(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRoundTripHonorsContext(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer a.Close()
	client := NewConn(b, DefaultConfig(), nil)
	defer client.Close()

	// Drain the request but never answer.
	go func() {
		_, _ = frame.ReadFrame(a, frame.DefaultLimits())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.RoundTrip(ctx, protocol.IdentitiesRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClosedConn(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	c := NewConn(a, Config{}, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.Send(protocol.Success{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
	if _, err := c.ReadMessage(); !errors.Is(err, ErrClosed) {
		t.Fatalf("read after close: %v", err)
	}
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := NextBackoffDelay(cfg, i+1, nil); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for attempt := 2; attempt < 6; attempt++ {
		got := NextBackoffDelay(cfg, attempt, rng)
		if got < 50*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetry(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Retry(context.Background(), cfg, 3, nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("Retry: err=%v calls=%d", err, calls)
	}

	sentinel := errors.New("down")
	calls = 0
	err = Retry(context.Background(), cfg, 2, nil, func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) || calls != 2 {
		t.Fatalf("Retry exhausted: err=%v calls=%d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry(ctx, BackoffConfig{InitialDelay: time.Hour}, 5, nil, func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry on cancelled ctx: %v", err)
	}
}
