// Package server carries the public provisioning listener and the ops
// listener of the edge process.
//
// The public surface is two verbs: GET redirects browser traffic to the
// marketing site and POST provisions a tunnel; everything else is rejected.
// Operational endpoints (health, listing, events, metrics, pprof) live on a
// separate listener so they never collide with the catch-all public routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
	"github.com/nport/nport-edge/internal/events"
	"github.com/nport/nport-edge/internal/tracing"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second

	// janitorInterval paces rate-limiter bucket eviction.
	janitorInterval = time.Minute
)

// Provider is the slice of the tunnel provider API the HTTP surface needs.
// The reaper declares its own view; neither depends on the concrete client.
type Provider interface {
	CreateTunnel(ctx context.Context, cfg config.Config, name string) (domain.Tunnel, error)
	ListTunnels(ctx context.Context, cfg config.Config) ([]domain.Tunnel, error)
}

// Server ties the request router, provisioning flow, and ops endpoints to
// their collaborators. Provider credentials are resolved per request through
// lookup, never cached on the struct.
type Server struct {
	cfg      config.ServerConfig
	lookup   config.Lookup
	provider Provider
	hub      *events.Hub
	log      *slog.Logger
	limiter  *rateLimiter
	version  string

	// now feeds expiry annotation on listings; tests override it.
	now func() time.Time
}

func New(cfg config.ServerConfig, lookup config.Lookup, provider Provider, hub *events.Hub, log *slog.Logger, version string) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		lookup:   lookup,
		provider: provider,
		hub:      hub,
		log:      log,
		limiter:  newRateLimiter(cfg.RatePerSec, cfg.RateBurst),
		version:  version,
		now:      time.Now,
	}
}

// Run binds both listeners and serves until ctx is canceled or a listener
// fails. Listeners are bound up front so address conflicts fail fast.
func (s *Server) Run(ctx context.Context) error {
	publicLn, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("public listen %s: %w", s.cfg.Listen, err)
	}
	opsLn, err := net.Listen("tcp", s.cfg.OpsListen)
	if err != nil {
		_ = publicLn.Close()
		return fmt.Errorf("ops listen %s: %w", s.cfg.OpsListen, err)
	}

	public := &http.Server{
		Handler:           s.publicHandler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	ops := &http.Server{
		Handler:           s.opsHandler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		s.log.Info("public listener started", "addr", publicLn.Addr().String(), "version", s.version)
		if err := public.Serve(publicLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public listener: %w", err)
		}
	}()
	go func() {
		s.log.Info("ops listener started", "addr", opsLn.Addr().String())
		if err := ops.Serve(opsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops listener: %w", err)
		}
	}()

	go s.runJanitor(ctx)

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		var firstErr error
		if err := shutdownServer(public, shutdownTimeout); err != nil {
			firstErr = err
		}
		if err := shutdownServer(ops, shutdownTimeout); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	case err := <-errCh:
		_ = shutdownServer(public, shutdownTimeout)
		_ = shutdownServer(ops, shutdownTimeout)
		return err
	}
}

func (s *Server) publicHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)

	h := http.Handler(mux)
	h = tracing.WrapHandler(s.cfg.OTLPEndpoint != "", "public", h)
	h = withAccessLog(s.log.With(slog.String("component", "public")), h)
	h = withRequestID(h)
	return h
}

// runJanitor periodically evicts idle rate-limit buckets so the hot allow()
// path never pays for map iteration.
func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup()
		}
	}
}

func shutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
