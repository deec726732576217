// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package integration is the offline-tolerant facade over the training
// collaborators: enrollment, workout recording, progress queries and sync.
package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/clubsync/internal/bus"
	"github.com/ManuGH/clubsync/internal/connectivity"
	"github.com/ManuGH/clubsync/internal/deadletter"
	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/resilience"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Collaborators are the external services the orchestrator composes.
// Reachability is optional; without it network health follows the mode.
type Collaborators struct {
	Catalog      domain.Catalog
	Challenges   domain.Challenges
	Plan         domain.PlanEngine
	Bridge       domain.HealthBridge
	Entitlements domain.Entitlements
	Auth         domain.AuthSession
	Reachability health.Reachability
}

func (c Collaborators) validate() error {
	var errs []error
	if c.Catalog == nil {
		errs = append(errs, errors.New("catalog collaborator required"))
	}
	if c.Challenges == nil {
		errs = append(errs, errors.New("challenge collaborator required"))
	}
	if c.Plan == nil {
		errs = append(errs, errors.New("plan engine collaborator required"))
	}
	if c.Bridge == nil {
		errs = append(errs, errors.New("health bridge collaborator required"))
	}
	if c.Entitlements == nil {
		errs = append(errs, errors.New("entitlement collaborator required"))
	}
	if c.Auth == nil {
		errs = append(errs, errors.New("auth session collaborator required"))
	}
	return errors.Join(errs...)
}

// Settings are the runtime tunables.
type Settings struct {
	Retry      queue.Policy
	DrainRate  float64
	DrainBurst int

	SyncInterval   time.Duration
	HealthInterval time.Duration
	ProbeTimeout   time.Duration
	CallTimeout    time.Duration

	MaxActivePrograms  int
	MinStartingWeight  float64
	MaxStartingWeight  float64
	DeviationThreshold float64

	BreakerThreshold    int
	BreakerResetTimeout time.Duration

	ErrorHistory int
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		Retry:               queue.DefaultPolicy(),
		DrainRate:           5,
		DrainBurst:          1,
		SyncInterval:        5 * time.Minute,
		HealthInterval:      time.Minute,
		ProbeTimeout:        5 * time.Second,
		CallTimeout:         15 * time.Second,
		MaxActivePrograms:   3,
		MinStartingWeight:   1,
		MaxStartingWeight:   500,
		DeviationThreshold:  0.20,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
		ErrorHistory:        50,
	}
}

func (s Settings) validate() error {
	var errs []error
	if s.SyncInterval <= 0 || s.HealthInterval <= 0 || s.ProbeTimeout <= 0 || s.CallTimeout <= 0 {
		errs = append(errs, errors.New("intervals and timeouts must be positive"))
	}
	if s.MaxActivePrograms < 1 {
		errs = append(errs, errors.New("max active programs must be at least 1"))
	}
	if s.MinStartingWeight <= 0 || s.MaxStartingWeight <= s.MinStartingWeight {
		errs = append(errs, errors.New("starting weight range must be positive and non-empty"))
	}
	if s.DeviationThreshold <= 0 {
		errs = append(errs, errors.New("deviation threshold must be positive"))
	}
	if s.BreakerThreshold < 1 || s.BreakerResetTimeout <= 0 {
		errs = append(errs, errors.New("breaker threshold and reset timeout must be positive"))
	}
	if s.ErrorHistory < 1 {
		errs = append(errs, errors.New("error history must be at least 1"))
	}
	return errors.Join(errs...)
}

// Archiver receives operations that exhausted their retries.
type Archiver interface {
	Archive(ctx context.Context, r deadletter.Record) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus publishes state changes on b instead of a private in-memory bus.
func WithBus(b bus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithArchiver archives permanently failed operations.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithClock overrides time.Now for state timestamps and the retry queue.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTracerProvider traces operations with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(telemetry.TracerName) }
}

// Orchestrator owns the integration status, sync status, health mapping and
// retry queue. All of that state is written under mu; collaborator calls run
// outside of it.
type Orchestrator struct {
	collab   Collaborators
	bus      bus.Bus
	archive  Archiver
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time
	queue    *queue.Queue
	monitor  *health.Monitor
	mode     *connectivity.Controller
	breakers map[health.ServiceIdentity]*resilience.CircuitBreaker

	enrollGroup    singleflight.Group
	enrollMu       sync.Mutex
	enrollInflight map[string]domain.StartingParameters
	syncMu         sync.Mutex

	mu             sync.RWMutex
	settings       Settings
	status         IntegrationStatus
	syncStatus     SyncStatus
	health         health.Snapshot
	currentErrors  []ErrorRecord
	criticalErrors []ErrorRecord
	failedOps      []FailedOperation
	forcedOffline  bool

	sched scheduler
}

// New wires an orchestrator. Nothing runs until Initialize and Start.
func New(collab Collaborators, settings Settings, opts ...Option) (*Orchestrator, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	o := &Orchestrator{
		collab:   collab,
		settings: settings,
		logger:   log.WithComponent("integration"),
		now:      time.Now,
		health:   health.NewSnapshot(),

		enrollInflight: make(map[string]domain.StartingParameters),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = bus.NewMemoryBus(bus.DefaultBufferSize)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(telemetry.TracerName)
	}

	now := o.now()
	o.status = IntegrationStatus{State: StatusInitializing, Since: now}
	o.syncStatus = SyncStatus{State: SyncStateIdle, Since: now}

	o.breakers = make(map[health.ServiceIdentity]*resilience.CircuitBreaker)
	for _, id := range health.AllServices() {
		o.breakers[id] = resilience.NewCircuitBreaker(string(id), settings.BreakerThreshold, settings.BreakerResetTimeout,
			resilience.WithFailureClassifier(countsAgainstBreaker))
	}

	o.mode = connectivity.New(connectivity.Online)
	o.mode.OnTransition(o.onTransition)

	q, err := queue.New(o.retryHandlers(), settings.Retry, o.mode,
		queue.WithClock(o.now),
		queue.WithRateLimit(settings.DrainRate, settings.DrainBurst))
	if err != nil {
		return nil, fmt.Errorf("create retry queue: %w", err)
	}
	o.queue = q

	o.monitor = health.NewMonitor(settings.ProbeTimeout)
	for _, p := range o.probes() {
		o.monitor.Register(p)
	}
	return o, nil
}

// countsAgainstBreaker keeps answers from a healthy backend and lost
// connectivity from tripping a collaborator's breaker.
func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, domain.ErrNotAuthorized) &&
		!IsNetworkError(err)
}

// ctxLogger returns the orchestrator logger enriched with the IDs carried by ctx.
func (o *Orchestrator) ctxLogger(ctx context.Context) *zerolog.Logger {
	logger := log.WithContext(ctx, o.logger)
	return &logger
}

// Bus returns the event bus state changes are published on.
func (o *Orchestrator) Bus() bus.Bus { return o.bus }

// Settings returns the active tunables.
func (o *Orchestrator) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// ApplySettings swaps in new tunables. Breaker thresholds keep their construction-time values.
func (o *Orchestrator) ApplySettings(s Settings) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := o.queue.SetPolicy(s.Retry); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	o.monitor.SetTimeout(s.ProbeTimeout)

	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()

	o.sched.resetIntervals(s.SyncInterval, s.HealthInterval, o.mode.Offline())
	o.logger.Info().Str(log.FieldEvent, "settings.applied").Msg("orchestrator settings updated")
	return nil
}

// call runs fn against one collaborator under its breaker and the call timeout.
func (o *Orchestrator) call(ctx context.Context, svc health.ServiceIdentity, fn func(context.Context) error) error {
	timeout := o.Settings().CallTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := o.breakers[svc].Execute(func() error { return fn(cctx) })
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%s: %w", svc, err)
	}
	return err
}

func callValue[T any](ctx context.Context, o *Orchestrator, svc health.ServiceIdentity, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := o.call(ctx, svc, func(cctx context.Context) error {
		v, err := fn(cctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (o *Orchestrator) resetBreakers() {
	for _, cb := range o.breakers {
		cb.Reset()
	}
}

// --- observable state ---

func (o *Orchestrator) Status() IntegrationStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) SyncStatus() SyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.syncStatus
}

func (o *Orchestrator) Offline() bool { return o.mode.Offline() }

func (o *Orchestrator) Mode() connectivity.Mode { return o.mode.Mode() }

// PendingOperations returns the queued operations, oldest first.
func (o *Orchestrator) PendingOperations() []queue.PendingOperation { return o.queue.Snapshot() }

// ServiceHealth returns a copy of the latest health mapping.
func (o *Orchestrator) ServiceHealth() health.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.health.Clone()
}

func (o *Orchestrator) CurrentErrors() []ErrorRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]ErrorRecord(nil), o.currentErrors...)
}

func (o *Orchestrator) CriticalErrors() []ErrorRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]ErrorRecord(nil), o.criticalErrors...)
}

func (o *Orchestrator) FailedOperations() []FailedOperation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]FailedOperation(nil), o.failedOps...)
}

// ClearErrors empties the transient and exhausted error lists. Critical
// errors are only cleared by a successful Initialize.
func (o *Orchestrator) ClearErrors() {
	o.mu.Lock()
	o.currentErrors = nil
	o.failedOps = nil
	o.mu.Unlock()
	o.publish(TopicErrorRaised, ErrorsCleared{})
}

// Snapshot returns all observable state at once.
func (o *Orchestrator) Snapshot() Snapshot {
	pending := o.queue.Snapshot()
	mode := o.mode.Mode()

	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Status:            o.status,
		Sync:              o.syncStatus,
		Mode:              mode,
		Offline:           mode == connectivity.Offline,
		PendingOperations: pending,
		ServiceHealth:     o.health.Clone(),
		OverallHealth:     o.health.Overall(),
		CurrentErrors:     append([]ErrorRecord(nil), o.currentErrors...),
		CriticalErrors:    append([]ErrorRecord(nil), o.criticalErrors...),
		FailedOperations:  append([]FailedOperation(nil), o.failedOps...),
	}
}

// --- state writers ---

func (o *Orchestrator) setStatus(state StatusState, cause error) {
	st := IntegrationStatus{State: state, Since: o.now()}
	if cause != nil {
		st.Cause = cause.Error()
	}
	o.mu.Lock()
	prev := o.status
	o.status = st
	o.mu.Unlock()

	if prev.State != st.State || prev.Cause != st.Cause {
		o.logger.Info().
			Str(log.FieldEvent, "status.changed").
			Str(log.FieldOldState, string(prev.State)).
			Str(log.FieldNewState, string(st.State)).
			Msg("integration status changed")
		o.publish(TopicStatusChanged, StatusChanged{Previous: prev, Current: st})
	}
}

func (o *Orchestrator) setSyncStatus(state SyncState, cause error) {
	now := o.now()
	o.mu.Lock()
	prev := o.syncStatus
	st := SyncStatus{State: state, Since: now, LastCompletedAt: prev.LastCompletedAt}
	if cause != nil {
		st.Cause = cause.Error()
	}
	if state == SyncStateCompleted {
		st.LastCompletedAt = now
	}
	o.syncStatus = st
	o.mu.Unlock()

	if prev.State != st.State || prev.Cause != st.Cause {
		o.publish(TopicSyncChanged, SyncChanged{Previous: prev, Current: st})
	}
}

// replaceHealth swaps the mapping wholesale and returns the previous one.
func (o *Orchestrator) replaceHealth(next health.Snapshot) health.Snapshot {
	o.mu.Lock()
	prev := o.health
	o.health = next
	o.mu.Unlock()

	if changes := health.Diff(prev, next); len(changes) > 0 {
		o.publish(TopicHealthChanged, HealthChanged{Snapshot: next.Clone(), Changes: changes})
	}
	return prev
}

func bounded[T any](list []T, limit int) []T {
	if over := len(list) - limit; over > 0 {
		return append(list[:0:0], list[over:]...)
	}
	return list
}

// recordError appends to the list matching the error's category.
func (o *Orchestrator) recordError(e *Error) {
	rec := ErrorRecord{
		Kind:        e.Kind,
		Category:    e.Kind.Category(),
		Message:     e.Error(),
		OperationID: e.OperationID,
		At:          o.now(),
	}
	o.mu.Lock()
	limit := o.settings.ErrorHistory
	if rec.Category == CategoryCritical {
		o.criticalErrors = bounded(append(o.criticalErrors, rec), limit)
	} else {
		o.currentErrors = bounded(append(o.currentErrors, rec), limit)
	}
	o.mu.Unlock()
	o.publish(TopicErrorRaised, rec)
}

// fail records a collaborator-style failure and returns it.
func (o *Orchestrator) fail(e *Error) *Error {
	o.recordError(e)
	return e
}
