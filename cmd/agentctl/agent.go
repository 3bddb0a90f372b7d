package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hnpl/libapps/internal/agent"
	"github.com/hnpl/libapps/internal/curve"
	"github.com/hnpl/libapps/internal/protocol/session"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

func socketFlags(name string) (*pflag.FlagSet, *string, *time.Duration) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	socket := fs.StringP("socket", "s", os.Getenv("SSH_AUTH_SOCK"), "agent socket")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	return fs, socket, timeout
}

func dial(ctx context.Context, socket string) (*agent.Client, error) {
	if socket == "" {
		return nil, errors.New("no agent socket: set SSH_AUTH_SOCK or --socket")
	}
	return agent.Dial(ctx, socket, session.DefaultConfig())
}

func runList(args []string, stdout io.Writer) error {
	fs, socket, timeout := socketFlags("list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := dial(ctx, *socket)
	if err != nil {
		return err
	}
	defer c.Close()
	ids, err := c.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(stdout, "no identities")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, id := range ids {
		keyType := "unknown"
		if pub, err := ssh.ParsePublicKey(id.KeyBlob); err == nil {
			keyType = pub.Type()
		}
		fp, err := curve.Fingerprint(id.KeyBlob)
		if err != nil {
			fp = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", keyType, fp, id.Comment)
	}
	return tw.Flush()
}

func runLock(args []string, stdin io.Reader, stdout io.Writer, lock bool) error {
	name := "unlock"
	if lock {
		name = "lock"
	}
	fs, socket, timeout := socketFlags(name)
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := readPassphrase(stdin, stdout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c, err := dial(ctx, *socket)
	if err != nil {
		return err
	}
	defer c.Close()
	if lock {
		err = c.Lock(ctx, pass)
	} else {
		err = c.Unlock(ctx, pass)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "agent %sed\n", name)
	return nil
}

// readPassphrase reads without echo from a terminal, or one line from
// any other reader.
func readPassphrase(stdin io.Reader, stdout io.Writer) ([]byte, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stdout, "passphrase: ")
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stdout)
		return pass, err
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty passphrase")
	}
	return []byte(line), nil
}
