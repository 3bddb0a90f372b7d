package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a commented starter config for kind.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "agentwired", "agent":
		return agentTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const agentTemplate = `# Socket served to SSH clients (export it as SSH_AUTH_SOCK).
listen = "/run/user/1000/libapps/agent.sock"

# Agent holding the keys, e.g. gpg-agent with enable-ssh-support.
upstream = "/run/user/1000/gnupg/S.gpg-agent.ssh"
upstream_attempts = 3

# Status server; leave status_addr empty to disable it.
status_addr = "127.0.0.1:9180"
status_token = ""
cors_origins = ["http://localhost:3000"]

max_frame_bytes = 262144
read_timeout = "0s"
write_timeout = "10s"
dial_timeout = "5s"
lock_passphrase_min = 0
log_level = "info"

# Readers whose cards append a byte to the 25519 curve OIDs. The
# built-in yubico entry is always active.
# [[vendor_fixups]]
# name = "nitrokey-legacy"
# label = "(?i)nitrokey"
`
