// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the orchestrator over HTTP: diagnostics, sync control
// and the user-facing operations.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/clubsync/internal/api/middleware"
	"github.com/ManuGH/clubsync/internal/deadletter"
	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/integration"
	"github.com/ManuGH/clubsync/internal/queue"
)

// Orchestrator is the part of integration.Orchestrator the API drives.
type Orchestrator interface {
	Status() integration.IntegrationStatus
	Snapshot() integration.Snapshot
	PendingOperations() []queue.PendingOperation
	CurrentErrors() []integration.ErrorRecord
	CriticalErrors() []integration.ErrorRecord
	FailedOperations() []integration.FailedOperation
	ClearErrors()
	PerformFullSync(ctx context.Context) error
	SetConnectivity(ctx context.Context, online bool, reason string) error

	Enroll(ctx context.Context, programID string, params domain.StartingParameters) (*integration.UnifiedProgramResult, error)
	RecordWorkout(ctx context.Context, workout domain.Workout, sessionID string) (*integration.WorkoutRecordResult, error)
	GetProgramRecommendations(ctx context.Context) ([]domain.Program, error)
	GetUnifiedProgress(ctx context.Context, sessionID string) (*integration.UnifiedProgressData, error)
	SyncHealthBridge(ctx context.Context, sessionID string) error
}

// DeadLetters lists archived operations.
type DeadLetters interface {
	List(ctx context.Context, limit int) ([]deadletter.Record, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// RateLimit is requests per minute per client on mutating routes; 0 disables it.
	RateLimit int
	// TracingService names the otelhttp server spans; empty disables tracing.
	TracingService string
	Version        string
}

// Server holds the router and its dependencies.
type Server struct {
	cfg    Config
	orch   Orchestrator
	dead   DeadLetters
	router chi.Router
}

// Option customises a Server.
type Option func(*Server)

// WithDeadLetters enables GET /api/v1/deadletter.
func WithDeadLetters(d DeadLetters) Option {
	return func(s *Server) { s.dead = d }
}

// New builds the server and its routes.
func New(cfg Config, orch Orchestrator, opts ...Option) *Server {
	s := &Server{cfg: cfg, orch: orch}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/operations", s.handleOperations)
		r.Get("/errors", s.handleErrors)
		r.Get("/deadletter", s.handleDeadLetters)
		r.Get("/programs/recommended", s.handleRecommendations)
		r.Get("/sessions/{sessionID}/progress", s.handleProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MutationRateLimit(s.cfg.RateLimit))
			r.Post("/sync", s.handleSync)
			r.Post("/connectivity", s.handleConnectivity)
			r.Delete("/errors", s.handleClearErrors)
			r.Post("/enrollments", s.handleEnroll)
			r.Post("/sessions/{sessionID}/workouts", s.handleRecordWorkout)
			r.Post("/sessions/{sessionID}/health-bridge-sync", s.handleHealthBridgeSync)
		})
	})
	return r
}
