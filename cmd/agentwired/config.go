package main

import (
	"fmt"

	"github.com/hnpl/libapps/internal/config"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	listen     string
	upstream   string
	statusAddr string
	logLevel   string
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("agentwired", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to TOML config (defaults apply when empty)")
	fs.StringVar(&opts.listen, "listen", "", "unix socket to serve the agent on")
	fs.StringVar(&opts.upstream, "upstream", "", "upstream agent socket (default $SSH_AUTH_SOCK)")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "status server address, empty disables it")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	return fs
}

// loadConfig parses args, loads the config file and applies flags that
// were set explicitly on top of it.
func loadConfig(args []string) (config.Config, error) {
	var opts options
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if fs.Changed("listen") {
		cfg.Listen = opts.listen
	}
	if fs.Changed("upstream") {
		cfg.Upstream = opts.upstream
	}
	if fs.Changed("status-addr") {
		cfg.StatusAddr = opts.statusAddr
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
