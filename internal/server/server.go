// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/automation"
	"github.com/xkilldash9x/conductor/internal/config"
)

// Automator runs one automation for already validated input.
type Automator interface {
	Run(ctx context.Context, input schemas.AutomationInput) (*schemas.AutomationResult, *automation.RunReport, error)
}

// RunHistory serves recorded runs. It is optional; without it the run endpoints answer 503.
type RunHistory interface {
	GetRun(ctx context.Context, id string) (*schemas.RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error)
}

// Server hosts the HTTP trigger endpoint and the run history API.
type Server struct {
	cfg         config.ServerConfig
	maxDuration time.Duration
	automator   Automator
	history     RunHistory
	runs        *semaphore.Weighted
	limiter     *rate.Limiter
	logger      *zap.Logger
	httpServer  *http.Server
}

// New builds a server. history may be nil.
func New(cfg config.ServerConfig, maxDuration time.Duration, automator Automator, history RunHistory, logger *zap.Logger) *Server {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	maxRuns := cfg.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 1
	}

	s := &Server{
		cfg:         cfg,
		maxDuration: maxDuration,
		automator:   automator,
		history:     history,
		runs:        semaphore.NewWeighted(maxRuns),
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger.Named("server"),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes registers every endpoint on a fresh router.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/automation", s.handleAutomation).Methods(http.MethodPost)
	// Older clients still post to the serverless function path.
	api.HandleFunc("/vercfunctions", s.handleAutomation).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondWithError(w, http.StatusNotFound, "Not found.")
	})
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("address", s.cfg.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
