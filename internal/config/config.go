package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hnpl/libapps/internal/logging"
	"github.com/hnpl/libapps/internal/oid"
	"github.com/hnpl/libapps/internal/protocol/frame"
	"github.com/hnpl/libapps/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the agentwired daemon configuration.
type Config struct {
	Listen            string
	Upstream          string
	UpstreamAttempts  int
	StatusAddr        string
	StatusToken       string
	CORSOrigins       []string
	MaxFrameBytes     uint32
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	DialTimeout       time.Duration
	LockPassphraseMin int
	LogLevel          string
	VendorFixups      []VendorFixup
}

// VendorFixup adds a reader label pattern whose cards report curve OIDs
// with one extra trailing byte.
type VendorFixup struct {
	Name  string `toml:"name"`
	Label string `toml:"label"`
}

type fileConfig struct {
	Listen            string        `toml:"listen"`
	Upstream          string        `toml:"upstream"`
	UpstreamAttempts  int           `toml:"upstream_attempts"`
	StatusAddr        string        `toml:"status_addr"`
	StatusToken       string        `toml:"status_token"`
	CORSOrigins       []string      `toml:"cors_origins"`
	MaxFrameBytes     int64         `toml:"max_frame_bytes"`
	ReadTimeout       string        `toml:"read_timeout"`
	WriteTimeout      string        `toml:"write_timeout"`
	DialTimeout       string        `toml:"dial_timeout"`
	LockPassphraseMin int           `toml:"lock_passphrase_min"`
	LogLevel          string        `toml:"log_level"`
	VendorFixups      []VendorFixup `toml:"vendor_fixups"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	s := session.DefaultConfig()
	return Config{
		Listen:            DefaultSocketPath(),
		Upstream:          os.Getenv("SSH_AUTH_SOCK"),
		UpstreamAttempts:  3,
		StatusAddr:        "",
		MaxFrameBytes:     s.Limits.MaxFrameBytes,
		ReadTimeout:       s.IdleTimeout,
		WriteTimeout:      s.WriteTimeout,
		DialTimeout:       s.DialTimeout,
		LockPassphraseMin: 0,
		LogLevel:          "info",
	}
}

// DefaultSocketPath prefers XDG_RUNTIME_DIR and falls back to a per-user
// directory under the temp dir.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "libapps", "agent.sock")
	}
	return filepath.Join(os.TempDir(), "libapps-agent-"+strconv.Itoa(os.Getuid()), "agent.sock")
}

// Load reads path over Default and validates the result. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse decodes TOML text over Default and validates the result.
func Parse(data string) (Config, error) {
	cfg := Default()
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func apply(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("upstream") {
		cfg.Upstream = strings.TrimSpace(raw.Upstream)
	}
	if meta.IsDefined("upstream_attempts") {
		cfg.UpstreamAttempts = raw.UpstreamAttempts
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("status_token") {
		cfg.StatusToken = strings.TrimSpace(raw.StatusToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 || raw.MaxFrameBytes > int64(^uint32(0)) {
			return fmt.Errorf("%w: max_frame_bytes %d out of range", ErrInvalidConfig, raw.MaxFrameBytes)
		}
		cfg.MaxFrameBytes = uint32(raw.MaxFrameBytes)
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
	} {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("lock_passphrase_min") {
		cfg.LockPassphraseMin = raw.LockPassphraseMin
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("vendor_fixups") {
		cfg.VendorFixups = raw.VendorFixups
	}
	return nil
}

// Validate checks field ranges and compiles vendor fixup patterns.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalidConfig)
	}
	if c.MaxFrameBytes < frame.HeaderLen {
		return fmt.Errorf("%w: max_frame_bytes must be at least %d", ErrInvalidConfig, frame.HeaderLen)
	}
	if c.UpstreamAttempts < 1 {
		return fmt.Errorf("%w: upstream_attempts must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.DialTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if c.LockPassphraseMin < 0 {
		return fmt.Errorf("%w: lock_passphrase_min must not be negative", ErrInvalidConfig)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.StatusToken != "" && c.StatusAddr == "" {
		return fmt.Errorf("%w: status_token set without status_addr", ErrInvalidConfig)
	}
	if _, err := c.Fixups(); err != nil {
		return err
	}
	return nil
}

// Session converts the transport settings.
func (c Config) Session() session.Config {
	s := session.DefaultConfig()
	s.IdleTimeout = c.ReadTimeout
	s.WriteTimeout = c.WriteTimeout
	s.DialTimeout = c.DialTimeout
	s.Limits = frame.Limits{MaxFrameBytes: c.MaxFrameBytes}
	return s
}

// Fixups builds the configured vendor fixups.
func (c Config) Fixups() ([]oid.Fixup, error) {
	out := make([]oid.Fixup, 0, len(c.VendorFixups))
	seen := make(map[string]bool, len(c.VendorFixups))
	for i, v := range c.VendorFixups {
		name := strings.TrimSpace(v.Name)
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate vendor_fixups name %q", ErrInvalidConfig, name)
		}
		seen[name] = true
		f, err := oid.NewTrailingByteFixup(name, v.Label)
		if err != nil {
			return nil, fmt.Errorf("%w: vendor_fixups[%d]: %v", ErrInvalidConfig, i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
