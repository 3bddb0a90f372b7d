// agentctl talks to an SSH agent through the libapps codec and decodes
// the curve identifiers found in OpenPGP card attributes.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const usage = `usage: agentctl <command> [flags]

commands:
  list            list identities offered by the agent
  lock            lock the agent (passphrase read from the terminal)
  unlock          unlock the agent
  oid HEX         decode DER OBJECT IDENTIFIER content bytes
  card HEX        parse OpenPGP card algorithm attributes
  config init     write a starter agentwired config
  config check    validate an agentwired config
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return runList(rest, stdout)
	case "lock":
		return runLock(rest, stdin, stdout, true)
	case "unlock":
		return runLock(rest, stdin, stdout, false)
	case "oid":
		return runOID(rest, stdout)
	case "card":
		return runCard(rest, stdout)
	case "config":
		return runConfig(rest, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
