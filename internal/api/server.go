package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"dubflow/internal/config"
	"dubflow/internal/logging"
	"dubflow/internal/workflow"
)

const defaultWatchInterval = 500 * time.Millisecond

// WorkflowService is the orchestrator surface the API drives.
type WorkflowService interface {
	Submit(ctx context.Context, input string, opts ...workflow.SubmitOption) (string, error)
	GetStatus(ctx context.Context, workflowID string) (*workflow.WorkflowStatus, error)
	GetResult(ctx context.Context, workflowID string) (*workflow.MixResult, error)
	Retry(ctx context.Context, workflowID string) (string, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// HealthFunc reports daemon diagnostics for /api/health.
type HealthFunc func(ctx context.Context) HealthView

// Server serves the dubflow HTTP API.
type Server struct {
	cfg       *config.Config
	workflows WorkflowService
	queueSvc  *QueueService
	health    HealthFunc
	logger    *slog.Logger
	validate  *validator.Validate
	submit    *rate.Limiter

	watchInterval time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithHealth installs the /api/health reporter.
func WithHealth(fn HealthFunc) ServerOption {
	return func(s *Server) {
		s.health = fn
	}
}

// WithWatchInterval sets how often watch streams poll for status changes.
func WithWatchInterval(interval time.Duration) ServerOption {
	return func(s *Server) {
		if interval > 0 {
			s.watchInterval = interval
		}
	}
}

// NewServer constructs an API server. Nothing listens until Start.
func NewServer(cfg *config.Config, workflows WorkflowService, queue QueueReader, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := rate.Inf
	if cfg.API.SubmitRatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.API.SubmitRatePerMinute) / 60)
	}
	s := &Server{
		cfg:           cfg,
		workflows:     workflows,
		queueSvc:      NewQueueService(queue),
		logger:        logging.NewComponentLogger(logger, "api-server"),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		submit:        rate.NewLimiter(limit, max(cfg.API.SubmitBurst, 1)),
		watchInterval: defaultWatchInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/workflows", s.handleSubmit)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/workflows/{id}/result", s.handleResult)
	mux.HandleFunc("GET /api/workflows/{id}/jobs", s.handleWorkflowJobs)
	mux.HandleFunc("POST /api/workflows/{id}/retry", s.handleRetry)
	mux.HandleFunc("GET /api/workflows/{id}/watch", s.handleWatch)
	mux.HandleFunc("GET /api/artifacts/{name}", s.handleArtifact)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("POST /api/estimate", s.handleEstimate)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("DELETE /api/queue", s.handlePurge)
	mux.HandleFunc("GET /api/queue/stats", s.handleQueueStats)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	return requestLogger(s.logger, authMiddleware(s.cfg.API.Token, mux))
}

// Start listens on the configured bind address and serves until Stop or ctx
// cancellation.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.API.Bind)
	if bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.cfg.API.Token != ""),
	)
	return nil
}

// Addr returns the bound listener address, useful when binding port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down within timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		_ = server.Close()
	}
}
