package agent

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/session"
)

var (
	ErrAgentFailure    = errors.New("agent: request refused")
	ErrUnexpectedReply = errors.New("agent: unexpected reply")
)

// Client speaks the agent protocol to a remote agent. Calls are
// serialized; a Client is safe for use by one goroutine at a time.
type Client struct {
	conn *session.Conn
}

func NewClient(nc net.Conn, cfg session.Config) *Client {
	return &Client{conn: session.NewConn(nc, cfg, nil)}
}

// Dial connects to the agent listening on the unix socket at path.
func Dial(ctx context.Context, path string, cfg session.Config) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("agent: dial %s: %w", path, err)
	}
	return NewClient(nc, cfg), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// List returns the identities the agent offers.
func (c *Client) List(ctx context.Context) ([]protocol.Identity, error) {
	resp, err := c.call(ctx, protocol.IdentitiesRequest{})
	if err != nil {
		return nil, err
	}
	answer, ok := resp.(protocol.IdentitiesAnswer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, resp.MessageType())
	}
	return answer.Identities, nil
}

// Sign asks the agent to sign data with the key encoded in keyBlob and
// returns the SSH wire signature.
func (c *Client) Sign(ctx context.Context, keyBlob, data []byte, flags protocol.SignatureFlags) ([]byte, error) {
	resp, err := c.call(ctx, protocol.SignRequest{KeyBlob: keyBlob, Data: data, Flags: flags})
	if err != nil {
		return nil, err
	}
	sig, ok := resp.(protocol.SignResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, resp.MessageType())
	}
	return sig.Signature, nil
}

func (c *Client) Lock(ctx context.Context, passphrase []byte) error {
	return c.expectSuccess(ctx, protocol.Lock{Passphrase: passphrase})
}

func (c *Client) Unlock(ctx context.Context, passphrase []byte) error {
	return c.expectSuccess(ctx, protocol.Unlock{Passphrase: passphrase})
}

func (c *Client) RemoveAll(ctx context.Context) error {
	return c.expectSuccess(ctx, protocol.RemoveAllIdentities{})
}

func (c *Client) expectSuccess(ctx context.Context, req protocol.Fields) error {
	resp, err := c.call(ctx, req)
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Success); !ok {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, resp.MessageType())
	}
	return nil
}

func (c *Client) call(ctx context.Context, req protocol.Fields) (protocol.Fields, error) {
	msg, err := c.conn.RoundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	switch msg.Fields.(type) {
	case protocol.Failure, protocol.ExtensionFailure:
		return nil, fmt.Errorf("%w: %s", ErrAgentFailure, req.MessageType())
	}
	return msg.Fields, nil
}
