// Package api is the HTTP trigger surface of the sync engine. Every route
// maps onto one orchestrator control operation; the workflows themselves
// run on the engine host, not in the request goroutine.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/shiftsync/internal/metrics"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Server routes admin requests to the orchestrator.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   *store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics instruments every route and serves the registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router.
func New(orch *orchestrator.Orchestrator, st *store.Store, opts ...Option) *Server {
	s := &Server{orch: orch, store: st, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/healthz", s.healthz)
	r.Route("/teams/{id}", func(r chi.Router) {
		r.Delete("/", s.unsubscribe)
		r.Post("/subscribe", s.subscribe)
		r.Post("/refresh", s.refresh)
		r.Post("/stop", s.stop)
		r.Get("/health", s.health)
		r.Post("/actions", s.scheduleAction)
		r.Post("/clear", s.clear)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
