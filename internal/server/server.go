// Package server exposes registered schemas over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/instructor/internal/config"
	"github.com/danmuck/instructor/internal/observability"
	"github.com/danmuck/instructor/internal/protocol/frame"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Server is the codec HTTP service.
type Server struct {
	Name     string
	Addr     string
	Registry *schema.Registry
	Limits   frame.Limits
	CertFile string
	KeyFile  string
	Appeared time.Time

	router *gin.Engine
}

// New builds a server with middleware installed and routes registered.
func New(cfg config.Config, registry *schema.Registry) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.ServiceLogger(cfg.Name)))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	if registry == nil {
		registry = schema.NewRegistry(cfg.SchemaOptions()...)
	}
	s := &Server{
		Name:     cfg.Name,
		Addr:     cfg.Addr,
		Registry: registry,
		Limits:   cfg.FrameLimits(),
		CertFile: cfg.TLSCertFile,
		KeyFile:  cfg.TLSKeyFile,
		Appeared: time.Now(),
		router:   r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on s.Addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln, over TLS when a certificate is configured.
// Cancelling ctx drains in-flight requests for up to five seconds.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("service", s.Name).
			Str("addr", ln.Addr().String()).
			Bool("tls", s.CertFile != "").
			Int("schemas", s.Registry.Len()).
			Msg("codec service listening")
		if s.CertFile != "" {
			errCh <- srv.ServeTLS(ln, s.CertFile, s.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Str("service", s.Name).Msg("codec service shutting down")
	return srv.Shutdown(shutdownCtx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
