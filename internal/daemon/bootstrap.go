// SPDX-License-Identifier: MIT

// Package daemon provides the core daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/clubsync/internal/api"
	"github.com/ManuGH/clubsync/internal/bus"
	"github.com/ManuGH/clubsync/internal/config"
	"github.com/ManuGH/clubsync/internal/deadletter"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/integration"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/sandbox"
	"github.com/ManuGH/clubsync/internal/telemetry"
)

const busBuffer = 64

// Runtime bundles everything Bootstrap wires together.
type Runtime struct {
	Orchestrator *integration.Orchestrator
	Backend      *sandbox.Backend
	API          *api.Server
	DeadLetters  *deadletter.BoltStore
	Telemetry    *telemetry.Provider
	Manager      Manager
}

// Settings maps configuration onto orchestrator tunables.
func Settings(cfg config.AppConfig) integration.Settings {
	return integration.Settings{
		Retry: queue.Policy{
			MaxRetries: cfg.Sync.MaxRetries,
			BaseDelay:  cfg.Sync.BackoffBase,
			MaxDelay:   cfg.Sync.BackoffMax,
			Jitter:     cfg.Sync.Jitter,
		},
		DrainRate:           cfg.Sync.DrainRate,
		DrainBurst:          cfg.Sync.DrainBurst,
		SyncInterval:        cfg.Sync.Interval,
		HealthInterval:      cfg.Health.Interval,
		ProbeTimeout:        cfg.Health.ProbeTimeout,
		CallTimeout:         cfg.Sync.CallTimeout,
		MaxActivePrograms:   cfg.Enrollment.MaxActivePrograms,
		MinStartingWeight:   cfg.Enrollment.MinStartingWeight,
		MaxStartingWeight:   cfg.Enrollment.MaxStartingWeight,
		DeviationThreshold:  cfg.Adaptation.DeviationThreshold,
		BreakerThreshold:    cfg.Breaker.Threshold,
		BreakerResetTimeout: cfg.Breaker.ResetTimeout,
		ErrorHistory:        cfg.Sync.ErrorHistory,
	}
}

// Bootstrap builds the orchestrator, its stores and the API server from cfg,
// runs Initialize once and returns a manager ready to Start. An initialization
// failure is not fatal: the orchestrator stays offline and recovers on its own.
func Bootstrap(ctx context.Context, cfg config.AppConfig, version string) (*Runtime, error) {
	logger := log.WithComponent("daemon")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, err
	}

	rt := &Runtime{}
	var cleanup []func()
	fail := func(err error) (*Runtime, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		return nil, err
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
		tp = nil
	}
	rt.Telemetry = tp
	if tp != nil {
		cleanup = append(cleanup, func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) })
	}

	switch cfg.Backend {
	case "memory":
		rt.Backend = sandbox.NewDemoBackend()
	default:
		return fail(fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend))
	}

	opts := []integration.Option{integration.WithBus(bus.NewMemoryBus(busBuffer))}
	if cfg.DeadLetter.Enabled {
		path := cfg.DeadLetter.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "deadletter.db")
		}
		store, err := deadletter.Open(path)
		if err != nil {
			return fail(fmt.Errorf("open dead-letter archive: %w", err))
		}
		cleanup = append(cleanup, func() { _ = store.Close() })
		rt.DeadLetters = store
		opts = append(opts, integration.WithArchiver(store))
	}

	collab := integration.Collaborators{
		Catalog:      rt.Backend.Catalog,
		Challenges:   rt.Backend.Challenges,
		Plan:         rt.Backend.Plan,
		Bridge:       rt.Backend.Bridge,
		Entitlements: rt.Backend.Entitlements,
		Auth:         rt.Backend.Auth,
		Reachability: rt.Backend.Network,
	}
	if cfg.Health.ReachabilityURL != "" {
		collab.Reachability = health.NewHTTPReachability(cfg.Health.ReachabilityURL)
	}

	orch, err := integration.New(collab, Settings(cfg), opts...)
	if err != nil {
		return fail(fmt.Errorf("create orchestrator: %w", err))
	}
	rt.Orchestrator = orch

	if err := orch.Initialize(ctx); err != nil {
		logger.Warn().Err(err).
			Str(log.FieldEvent, "initialize.degraded").
			Msg("orchestrator started offline")
	}

	apiCfg := api.Config{RateLimit: cfg.API.RateLimit, Version: version}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = cfg.LogService
	}
	var apiOpts []api.Option
	if rt.DeadLetters != nil {
		apiOpts = append(apiOpts, api.WithDeadLetters(rt.DeadLetters))
	}
	rt.API = api.New(apiCfg, orch, apiOpts...)

	mgr, err := NewManager(DefaultServerConfig(cfg.API.ListenAddr), Deps{
		Logger:       logger,
		APIHandler:   rt.API.Handler(),
		Orchestrator: orch,
	})
	if err != nil {
		_ = orch.Close()
		return fail(err)
	}
	registerRuntimeHooks(mgr, rt, logger)
	rt.Manager = mgr
	return rt, nil
}

// registerRuntimeHooks closes stores after the orchestrator has stopped and
// flushes telemetry last.
func registerRuntimeHooks(mgr Manager, rt *Runtime, logger zerolog.Logger) {
	if rt.Telemetry != nil {
		tp := rt.Telemetry
		mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	}
	if rt.DeadLetters != nil {
		store := rt.DeadLetters
		mgr.RegisterShutdownHook("deadletter", func(context.Context) error {
			logger.Debug().Msg("closing dead-letter archive")
			return store.Close()
		})
	}
}
