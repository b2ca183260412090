// Package server wires handlers, middleware, and routes, and runs the HTTP server.
//
// DEPENDENCY FLOW:
// main.go builds the backends (executor, chat client) and the call log, then
// hands them to New. New is the composition root:
//
//	executor + chat client + call log → RelayService → handlers → routes
//
// Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/ai-code-relay/internal/executor"
	"github.com/sakif/ai-code-relay/internal/handler"
	"github.com/sakif/ai-code-relay/internal/middleware"
	"github.com/sakif/ai-code-relay/internal/observability"
	"github.com/sakif/ai-code-relay/internal/repository"
	"github.com/sakif/ai-code-relay/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the backends the server relays to.
// Calls may be nil, which disables the call log.
type Deps struct {
	Executor  executor.Executor
	Assistant service.Asker
	Calls     repository.CallRepository
}

// allMethods is every standard HTTP method; cors takes an explicit list.
var allMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace,
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	metrics *observability.Metrics
	relay   *service.RelayService
}

// New creates a Server and registers every route.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Executor == nil {
		return nil, errors.New("server: an executor is required")
	}
	if deps.Assistant == nil {
		return nil, errors.New("server: an assistant client is required")
	}

	metrics := observability.NewMetrics()
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		relay:   service.NewRelayService(deps.Executor, deps.Assistant, deps.Calls, metrics, logger),
	}
	s.setupRoutes()

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTES:
// POST /run        → execute code
// POST /ask-ai     → ask the coding assistant
// GET  /api/calls  → recent relay calls (audit log)
// GET  /healthz    → liveness
// GET  /metrics    → Prometheus metrics
//
// MIDDLEWARE ORDER:
// RequestID → RealIP → Logger → Metrics → Recoverer → CORS → handler.
// Recoverer sits inside Logger so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	// Open relay: any origin, method and header. Browsers send the editor's
	// JSON POSTs with a preflight, which this answers.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   allMethods,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	runHandler := handler.NewRunHandler(s.relay, s.logger)
	assistantHandler := handler.NewAssistantHandler(s.relay, s.logger)
	callsHandler := handler.NewCallsHandler(s.relay, s.logger)
	healthHandler := handler.NewHealthHandler(s.relay.ExecutorName())

	s.router.Post("/run", runHandler.HandleRun)
	s.router.Post("/ask-ai", assistantHandler.HandleAsk)
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/calls", callsHandler.HandleList)
	})
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("executor", s.relay.ExecutorName()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
