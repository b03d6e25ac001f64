// Package api serves the local API: pipeline stats, convention and settings
// edits, results, review decisions and the event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/processor"
	"github.com/foldkeeper/foldkeeper/internal/ratelimit"
	"github.com/foldkeeper/foldkeeper/internal/sse"
	"github.com/foldkeeper/foldkeeper/internal/store"
	"github.com/foldkeeper/foldkeeper/internal/validation"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Services groups the components the handlers use.
type Services struct {
	Store       *store.Store
	Pipeline    *processor.Pipeline
	Conventions *conventions.Store
	SSEManager  *sse.Manager
}

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigins enables CORS for a browser based status page.
	AllowedOrigins []string

	// RateLimiter throttles requests per client IP. Nil disables throttling.
	RateLimiter *ratelimit.KeyedRateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store       *store.Store
	pipeline    *processor.Pipeline
	conventions *conventions.Store
	sseManager  *sse.Manager
	sseHandler  *sse.Handler
	router      *chi.Mux
	api         huma.API
	validate    *validation.Validator
	logger      *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services Services, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		store:       services.Store,
		pipeline:    services.Pipeline,
		conventions: services.Conventions,
		sseManager:  services.SSEManager,
		router:      router,
		validate:    validation.New(),
		logger:      logger,
	}
	if services.SSEManager != nil {
		s.sseHandler = sse.NewHandler(services.SSEManager, logger)
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("Foldkeeper API", Version)
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, used by tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(opts.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if opts.RateLimiter != nil {
		s.router.Use(limitByClient(opts.RateLimiter, s.logger, eventsPath))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerStatsRoutes()
	s.registerConventionRoutes()
	s.registerSettingsRoutes()
	s.registerResultRoutes()
	s.registerReviewRoutes()
	s.registerPipelineRoutes()

	// The event stream writes its own framing, outside huma.
	if s.sseHandler != nil {
		s.router.Get(eventsPath, s.sseHandler.ServeHTTP)
	}
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when ctx does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
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
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("status API stopped")
	return nil
}
