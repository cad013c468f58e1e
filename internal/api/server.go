// SPDX-License-Identifier: MIT

// Package api exposes the control plane over HTTP: run triggers,
// pause/resume, the application ledger, saved answers, the redacted
// config view, the status dashboard, and the exports file server.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dreambooster/dreambooster/internal/answers"
	"github.com/dreambooster/dreambooster/internal/api/middleware"
	"github.com/dreambooster/dreambooster/internal/config"
	"github.com/dreambooster/dreambooster/internal/health"
	"github.com/dreambooster/dreambooster/internal/runs"
	"github.com/dreambooster/dreambooster/internal/track"
)

// Runner is the slice of the run engine the API drives.
type Runner interface {
	Run(ctx context.Context, opts runs.Options) (*runs.Stats, error)
	Pause()
	Resume()
	Status() runs.Status
	Running() bool
}

// LedgerReader answers application queries from the ledger.
type LedgerReader interface {
	ByStatus(ctx context.Context, status string, limit int) ([]track.Record, error)
	Recent(ctx context.Context, limit int) ([]track.Record, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// AnswerStore exposes the saved-answer bank.
type AnswerStore interface {
	List(ctx context.Context) ([]answers.Answer, error)
	Remove(ctx context.Context, key string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Idempotency deduplicates run triggers carrying an Idempotency-Key.
type Idempotency interface {
	Idempotent(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)
}

// Deps collects everything the server serves from.
type Deps struct {
	Runner  Runner
	Ledger  LedgerReader
	Answers AnswerStore
	Idem    Idempotency
	Health  *health.Manager
}

// Server is the control API. Escaping config reads go through the
// mutex so hot reloads swap the snapshot without racing handlers.
type Server struct {
	mu   sync.RWMutex
	cfg  config.Config
	deps Deps

	// runCtx outlives individual trigger requests; background runs are
	// bound to the daemon lifetime, not to the HTTP request.
	runCtx    context.Context
	runOpts   func() runs.Options
	startTime time.Time
}

// New constructs the API server. runCtx bounds background runs started
// by POST /api/v1/run and should be the daemon's root context.
func New(runCtx context.Context, cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		runCtx:    runCtx,
		startTime: time.Now(),
	}
	s.runOpts = s.optionsFromConfig
	return s
}

// ApplyConfig installs a reloaded configuration snapshot.
func (s *Server) ApplyConfig(cfg config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Server) config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) optionsFromConfig() runs.Options {
	cfg := s.config()
	return runs.Options{
		SkipApply:   cfg.SkipApply,
		Parallelism: cfg.Parallelism,
	}
}

// Handler builds the chi router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	cfg := s.config()

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "dreambooster-api"
	}

	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        tracing,
		EnableLogging:         true,
		EnableRateLimit:       true,
		TrustedProxies:        cfg.TrustedProxies,
	})

	// Public probes
	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}

	// Token-gated control plane
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Post("/run", s.handleRun)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Get("/applications", s.handleApplications)
		r.Get("/answers", s.handleAnswersList)
		r.Delete("/answers/{key}", s.handleAnswerDelete)
		r.Get("/config", s.handleConfig)
		r.Post("/auth/session", s.handleSessionLogin)
	})

	// Dashboard and exports share the token gate; the dashboard reads
	// its data through /api/v1 anyway, but the exports hold PII.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/dashboard", s.handleDashboard)
		r.Handle("/exports/*", http.StripPrefix("/exports/", s.exportsFileServer()))
	})

	return r
}
