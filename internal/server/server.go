// Package server exposes the pipeline over a small JSON API: trigger runs,
// trigger ingestion, request stops, and read status and editorial reports.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/logger"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/policy"
	"newsdesk/internal/proclock"
	"newsdesk/internal/store"
)

// Runner executes pipeline runs.
type Runner interface {
	Run(ctx context.Context, req policy.Request) (*pipeline.Result, error)
}

// Ingester executes ingestion runs.
type Ingester interface {
	Run(ctx context.Context, opts ingest.Options) (*ingest.Result, error)
}

// Server is the HTTP surface over the store and pipeline.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      *store.Store
	lock       *proclock.Lock
	runner     Runner
	ingester   Ingester
	cfg        *config.Config
	log        *slog.Logger
}

// New creates the HTTP server.
func New(st *store.Store, runner Runner, ingester Ingester, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		store:    st,
		lock:     proclock.New(st),
		runner:   runner,
		ingester: ingester,
		cfg:      cfg,
		log:      logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // process runs answer synchronously
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/process", s.handleProcess)
		r.Post("/ingest", s.handleIngest)
		r.Post("/stop", s.handleStop)
		r.Post("/reset", s.handleReset)
		r.Get("/report", s.handleReport)
		r.Get("/sources", s.handleSources)
		r.Post("/clusters/{id}/reject", s.handleRejectCluster)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
