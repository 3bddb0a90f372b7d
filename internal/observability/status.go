package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hnpl/libapps/internal/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// StatusConfig configures the HTTP status server. When Token is set,
// /ready and /metrics require it as a bearer token; /health stays open.
type StatusConfig struct {
	Addr        string
	Service     string
	Token       string
	CORSOrigins []string
	Ready       func(ctx context.Context) error
}

// StatusServer serves health, readiness and prometheus metrics.
type StatusServer struct {
	cfg     StatusConfig
	router  *gin.Engine
	started time.Time
}

func NewStatusServer(cfg StatusConfig) *StatusServer {
	RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetricsMiddleware(cfg.Service))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &StatusServer{cfg: cfg, router: r, started: time.Now()}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

func (s *StatusServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Service,
			"version": version,
		})
	})

	protected := s.router.Group("/")
	if s.cfg.Token != "" {
		protected.Use(BearerAuth(auth.StaticToken{Token: s.cfg.Token}))
	}
	protected.GET("/ready", func(c *gin.Context) {
		if s.cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := s.cfg.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":   false,
					"error":   err.Error(),
					"service": s.cfg.Service,
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Service,
			"version": version,
		})
	})
	protected.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves on cfg.Addr until ctx ends.
func (s *StatusServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully.
func (s *StatusServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
