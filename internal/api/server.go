// Package api serves analysis over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"smc-lab/internal/analysis"
	"smc-lab/internal/config"
	"smc-lab/internal/logging"
	"smc-lab/internal/observability"
	"smc-lab/internal/reporting"
	"smc-lab/internal/verification"
)

// Server is the HTTP API server.
type Server struct {
	cfg        config.ServerConfig
	logger     zerolog.Logger
	router     *mux.Router
	httpServer *http.Server

	// Dependencies
	runner   *analysis.Runner
	reports  *reporting.Generator
	verifier *verification.Verifier

	// State
	mu       sync.Mutex
	started  time.Time
	runs     int
	failures int
	lastRun  time.Time
	passes   int
	lastPass time.Time
}

// NewServer creates a server and its routes.
func NewServer(cfg config.ServerConfig, runner *analysis.Runner, reports *reporting.Generator, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logging.Component(logger, "api"),
		runner:  runner,
		reports: reports,
		started: time.Now(),
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/analysis", s.handleAnalyzeCandles).Methods(http.MethodPost)
	v1.HandleFunc("/analysis/{symbol}/{interval}", s.handleAnalyzeSeries).Methods(http.MethodGet)
	v1.HandleFunc("/analysis/{symbol}/{interval}/latest", s.handleLatestRun).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}/verify", s.handleVerifyRun).Methods(http.MethodGet)
}

// WithVerifier enables GET /v1/runs/{id}/verify.
func (s *Server) WithVerifier(v *verification.Verifier) *Server {
	s.verifier = v
	return s
}

// Handler returns the router wrapped with CORS and panic recovery.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(cors(s.router))
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) recordRun(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		return
	}
	s.runs++
	s.lastRun = time.Now()
}

// RecordBatch counts a scheduled analysis pass for /status.
func (s *Server) RecordBatch(r analysis.BatchReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes++
	s.lastPass = r.Started
}
