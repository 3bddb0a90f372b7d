package session

import (
	"time"

	"github.com/hnpl/libapps/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-connection limits and timeouts. Zero timeouts
// disable the deadline.
type Config struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	Limits       frame.Limits
	Backoff      BackoffConfig
}

// DefaultConfig returns the defaults used when no config file is given.
// SSH clients keep agent connections open for a whole session, so there
// is no idle timeout.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  0,
		WriteTimeout: 10 * time.Second,
		DialTimeout:  5 * time.Second,
		Limits:       frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}
