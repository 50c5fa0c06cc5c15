package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/me/ingestd/internal/config"
	"github.com/me/ingestd/internal/scheduler"
)

// Version is reported by /health and the discovery endpoint.
const Version = "0.1.0"

// Server is the ingestd REST API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.ServerConfig
	startTime   time.Time
	scheduler   *scheduler.Scheduler
	validate    *validator.Validate
	version     string
	sseInterval time.Duration
}

// Option configures optional Server settings.
type Option func(*Server)

// WithVersion overrides the reported version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithSSEInterval sets how often SSE streams poll for submission changes.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.sseInterval = d
		}
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		config:      cfg,
		startTime:   time.Now(),
		scheduler:   sched,
		validate:    newValidator(),
		version:     Version,
		sseInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// StartScheduler begins the dispatch loop in a background goroutine.
func (s *Server) StartScheduler(ctx context.Context) {
	go func() {
		err := s.scheduler.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", s.handleListSubmissions)
			r.Post("/", s.handleCreateSubmission)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSubmission)
				r.Get("/summary", s.handleSubmissionSummary)
			})
		})

		r.Route("/sse", func(r chi.Router) {
			r.Get("/submissions/{id}", s.handleSSESubmission)
		})
	})

	// Short aliases
	r.Post("/ingest", s.handleCreateSubmission)
	r.Get("/status/{id}", s.handleGetSubmission)
	r.Get("/health", s.handleHealth)
}
