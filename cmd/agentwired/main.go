// agentwired serves the SSH agent protocol on a unix socket and forwards
// identity and signing requests to an upstream agent, typically the one
// fronting a hardware token.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hnpl/libapps/internal/agent"
	"github.com/hnpl/libapps/internal/agent/upstream"
	"github.com/hnpl/libapps/internal/auth"
	"github.com/hnpl/libapps/internal/config"
	"github.com/hnpl/libapps/internal/logging"
	"github.com/hnpl/libapps/internal/observability"
	"github.com/hnpl/libapps/internal/oid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "agentwired: %v\n", err)
		os.Exit(2)
	}

	observability.InitLogger("agentwired")
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && os.Getenv(logging.EnvLogLevel) == "" {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("agentwired stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	fixups, err := cfg.Fixups()
	if err != nil {
		return err
	}
	for _, f := range fixups {
		if err := oid.Register(f); err != nil {
			return err
		}
	}

	sessionCfg := cfg.Session()
	backend := upstream.New(
		upstream.UnixDialer(cfg.Upstream, cfg.DialTimeout),
		sessionCfg.Backoff,
		upstream.WithAttempts(cfg.UpstreamAttempts),
		upstream.WithObserver(observability.RecordUpstreamCall),
	)
	defer backend.Close()

	a := agent.New(backend,
		agent.WithLock(auth.NewLock(cfg.LockPassphraseMin)),
		agent.WithMetrics(observability.NewAgentMetrics()),
	)

	ln, err := agent.ListenUnix(cfg.Listen)
	if err != nil {
		return err
	}
	log.Info().
		Str("listen", cfg.Listen).
		Str("upstream", cfg.Upstream).
		Int("vendor_fixups", len(oid.Fixups())).
		Msg("agentwired started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.NewServer(a, sessionCfg).Serve(ctx, ln)
	})
	if cfg.StatusAddr != "" {
		status := observability.NewStatusServer(observability.StatusConfig{
			Addr:        cfg.StatusAddr,
			Service:     "agentwired",
			Token:       cfg.StatusToken,
			CORSOrigins: cfg.CORSOrigins,
			Ready: func(ctx context.Context) error {
				_, err := backend.List(ctx)
				return err
			},
		})
		g.Go(func() error {
			return status.Run(ctx)
		})
	}
	return g.Wait()
}
