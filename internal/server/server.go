// ABOUTME: HTTP server lifecycle for the agent pool: routes, listeners, file watcher and shutdown
// ABOUTME: Run blocks until the context is cancelled or a component fails

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/agentpool/internal/auth"
	"github.com/2389/agentpool/internal/config"
	"github.com/2389/agentpool/internal/pool"
	"github.com/2389/agentpool/internal/reload"
)

const shutdownTimeout = 5 * time.Second

// Server serves the pool's HTTP API.
type Server struct {
	config     *config.Config
	pool       *pool.Pool
	verifier   auth.TokenVerifier
	httpServer *http.Server
	watcher    *reload.Watcher
	logger     *slog.Logger

	// baseCtx is the parent of every request context. Cancelling it ends
	// long-lived event streams so Shutdown can drain.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New builds the server and its routes. It does not start listening.
func New(cfg *config.Config, p *pool.Pool, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		pool:       p,
		logger:     logger.With("component", "server"),
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}
	if cfg.Auth.JWTSecret != "" {
		s.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		s.logger.Warn("auth.jwt_secret not set, admin endpoints are unauthenticated")
	}

	if cfg.Agents.Watch {
		w, err := reload.New(reload.Config{
			Path:     cfg.Agents.File,
			Debounce: cfg.Agents.ReloadDebounce,
			Reload:   p.ReloadFunc(pool.TriggerWatch),
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating agents file watcher: %w", err)
		}
		s.watcher = w
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("GET /api/agents/{id}/state", s.handleAgentState)
	mux.HandleFunc("GET /api/agents/{id}/history", s.handleAgentHistory)
	mux.HandleFunc("POST /api/agents/{id}/login", s.handleLogin)
	mux.HandleFunc("POST /api/agents/{id}/logout", s.handleLogout)
	mux.HandleFunc("POST /api/sessions/{handle}/logout", s.handleSessionLogout)
	mux.HandleFunc("POST /api/agents/{id}/call/start", s.handleCallStart)
	mux.HandleFunc("POST /api/agents/{id}/call/end", s.handleCallEnd)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	admin := auth.RequireToken(s.verifier)
	mux.Handle("POST /api/reload", admin(http.HandlerFunc(s.handleReload)))
	mux.Handle("GET /api/reloads", admin(http.HandlerFunc(s.handleListReloads)))
	mux.Handle("POST /api/agents/{id}/logoff", admin(http.HandlerFunc(s.handleLogoff)))

	if s.config.Metrics.Enabled && s.pool.Metrics() != nil {
		mux.Handle("GET "+s.config.Metrics.Path, s.pool.Metrics().Handler())
	}

	return mux
}

// Run listens on server.http_addr and serves until ctx is cancelled.
// Returns nil on graceful shutdown, or the first component error.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.watcher != nil {
		if err := s.watcher.Start(gctx); err != nil {
			_ = ln.Close()
			s.cancelBase()
			return fmt.Errorf("starting agents file watcher: %w", err)
		}
	}

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("context canceled, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the watcher and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if s.watcher != nil {
		errs = appendCloseError(errs, "watcher stop", s.watcher.Stop())
	}
	s.cancelBase()
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	return errors.Join(errs...)
}
