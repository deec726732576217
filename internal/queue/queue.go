// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Handler replays one operation. Handlers must be idempotent: an earlier
// attempt may have succeeded server-side with its response lost.
type Handler func(ctx context.Context, op PendingOperation) error

// Handlers maps every Kind to exactly one handler.
type Handlers struct {
	Enrollment       Handler
	WorkoutRecord    Handler
	ProgressSync     Handler
	HealthBridgeSync Handler
}

// For returns the handler for kind, or nil for an unknown kind.
func (h Handlers) For(kind Kind) Handler {
	switch kind {
	case KindEnrollment:
		return h.Enrollment
	case KindWorkoutRecord:
		return h.WorkoutRecord
	case KindProgressSync:
		return h.ProgressSync
	case KindHealthBridgeSync:
		return h.HealthBridgeSync
	}
	return nil
}

func (h Handlers) validate() error {
	var errs []error
	for _, k := range Kinds() {
		if h.For(k) == nil {
			errs = append(errs, fmt.Errorf("no handler for kind %q", k))
		}
	}
	return errors.Join(errs...)
}

// Gate tells the queue whether dispatching is currently allowed.
type Gate interface {
	Paused() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

func (f GateFunc) Paused() bool { return f() }

var (
	// ErrPaused is returned by Drain when the gate reports paused.
	ErrPaused = errors.New("queue: dispatch paused")
	// ErrUnknownKind rejects operations without a handler.
	ErrUnknownKind = errors.New("queue: unknown operation kind")
)

// Failure is an operation removed after exhausting its retries.
type Failure struct {
	Operation PendingOperation
	Cause     error
}

// DrainOptions controls one drain pass.
type DrainOptions struct {
	// Force ignores NextAttemptAt.
	Force bool
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int
	Succeeded int
	Requeued  int
	Skipped   int
	Failed    []Failure
	// Paused is set when the gate stopped the pass early.
	Paused bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithRand overrides the jitter source.
func WithRand(rnd func() float64) Option {
	return func(q *Queue) { q.rnd = rnd }
}

// WithRateLimit paces dispatch to r operations per second.
func WithRateLimit(r float64, burst int) Option {
	return func(q *Queue) {
		if r > 0 && burst > 0 {
			q.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// Queue is a FIFO of pending operations. Drains are serialized and never
// dispatch while the gate is paused.
type Queue struct {
	handlers Handlers
	gate     Gate
	logger   zerolog.Logger
	now      func() time.Time
	rnd      func() float64
	limiter  *rate.Limiter

	drainMu sync.Mutex

	mu     sync.Mutex
	policy Policy
	ops    []*PendingOperation
}

// New creates a queue. It fails when a kind has no handler or the policy is invalid.
func New(handlers Handlers, policy Policy, gate Gate, opts ...Option) (*Queue, error) {
	if err := handlers.validate(); err != nil {
		return nil, err
	}
	if err := policy.validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if gate == nil {
		gate = GateFunc(func() bool { return false })
	}
	q := &Queue{
		handlers: handlers,
		gate:     gate,
		policy:   policy,
		logger:   log.WithComponent("queue"),
		now:      time.Now,
		rnd:      rand.Float64,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// SetPolicy replaces the retry policy for subsequent failures.
func (q *Queue) SetPolicy(p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	q.mu.Lock()
	q.policy = p
	q.mu.Unlock()
	return nil
}

// Policy returns the active retry policy.
func (q *Queue) Policy() Policy {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.policy
}

// Enqueue records a failed operation and returns a copy of it.
func (q *Queue) Enqueue(kind Kind, payload Payload, cause error) (PendingOperation, error) {
	if q.handlers.For(kind) == nil {
		return PendingOperation{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	now := q.now()

	q.mu.Lock()
	op := &PendingOperation{
		ID:            uuid.New(),
		Kind:          kind,
		Payload:       cloneMap(payload),
		CreatedAt:     now,
		NextAttemptAt: now.Add(q.policy.Delay(0, q.rnd)),
	}
	if cause != nil {
		op.LastError = cause.Error()
	}
	q.ops = append(q.ops, op)
	out := op.Clone()
	q.publishGaugesLocked()
	q.mu.Unlock()

	q.logger.Info().
		Str(log.FieldEvent, "queue.enqueued").
		Str(log.FieldOperationID, out.ID.String()).
		Str(log.FieldKind, string(kind)).
		Str(log.FieldReason, out.LastError).
		Msg("operation queued for retry")
	return out, nil
}

func cloneMap(m Payload) Payload {
	if m == nil {
		return Payload{}
	}
	return maps.Clone(m)
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Snapshot returns copies of all pending operations in FIFO order.
func (q *Queue) Snapshot() []PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingOperation, len(q.ops))
	for i, op := range q.ops {
		out[i] = op.Clone()
	}
	return out
}

// Any reports whether some pending operation matches.
func (q *Queue) Any(match func(PendingOperation) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.ops, func(op *PendingOperation) bool { return match(*op) })
}

// Find returns a copy of the operation with id.
func (q *Queue) Find(id uuid.UUID) (PendingOperation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(id); i >= 0 {
		return q.ops[i].Clone(), true
	}
	return PendingOperation{}, false
}

func (q *Queue) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(q.ops, func(op *PendingOperation) bool { return op.ID == id })
}

// Drain dispatches every operation present at the start of the pass, one at
// a time, oldest first. Operations enqueued during the pass wait for the next one.
func (q *Queue) Drain(ctx context.Context, opts DrainOptions) (DrainResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var res DrainResult
	for _, id := range q.pendingIDs() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if q.gate.Paused() {
			res.Paused = true
			return res, ErrPaused
		}

		op, ok := q.Find(id)
		if !ok {
			continue
		}
		if !opts.Force && q.now().Before(op.NextAttemptAt) {
			res.Skipped++
			continue
		}
		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		res.Attempted++
		err := q.dispatch(ctx, op)
		switch settled, failure := q.settle(op.ID, err); settled {
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeRequeued:
			res.Requeued++
		case outcomeExhausted:
			res.Failed = append(res.Failed, failure)
		}
	}
	return res, nil
}

func (q *Queue) pendingIDs() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]uuid.UUID, len(q.ops))
	for i, op := range q.ops {
		ids[i] = op.ID
	}
	return ids
}

func (q *Queue) dispatch(ctx context.Context, op PendingOperation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handlers.For(op.Kind)(log.ContextWithOperationID(ctx, op.ID.String()), op)
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRequeued
	outcomeExhausted
)

// settle applies the result of one attempt. It is the only place RetryCount changes.
func (q *Queue) settle(id uuid.UUID, err error) (outcome, Failure) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.publishGaugesLocked()

	i := q.indexLocked(id)
	if i < 0 {
		return outcomeSucceeded, Failure{}
	}
	op := q.ops[i]
	logger := q.logger.With().
		Str(log.FieldOperationID, id.String()).
		Str(log.FieldKind, string(op.Kind)).
		Logger()

	if err == nil {
		q.ops = slices.Delete(q.ops, i, i+1)
		metrics.RecordRetryAttempt(string(op.Kind), "succeeded")
		logger.Info().Str(log.FieldEvent, "queue.retry_succeeded").Int(log.FieldRetryCount, op.RetryCount).Msg("queued operation succeeded")
		return outcomeSucceeded, Failure{}
	}

	op.RetryCount++
	op.LastError = err.Error()

	if IsPermanent(err) || op.RetryCount >= q.policy.MaxRetries {
		q.ops = slices.Delete(q.ops, i, i+1)
		metrics.RecordRetryAttempt(string(op.Kind), "exhausted")
		logger.Warn().Err(err).Str(log.FieldEvent, "queue.permanently_failed").Int(log.FieldRetryCount, op.RetryCount).Msg("queued operation permanently failed")
		return outcomeExhausted, Failure{Operation: op.Clone(), Cause: err}
	}

	op.NextAttemptAt = q.now().Add(q.policy.Delay(op.RetryCount, q.rnd))
	metrics.RecordRetryAttempt(string(op.Kind), "requeued")
	logger.Info().Err(err).
		Str(log.FieldEvent, "queue.requeued").
		Int(log.FieldRetryCount, op.RetryCount).
		Time("next_attempt_at", op.NextAttemptAt).
		Msg("queued operation failed, will retry")
	return outcomeRequeued, Failure{}
}

func (q *Queue) publishGaugesLocked() {
	counts := make(map[Kind]int, len(Kinds()))
	for _, op := range q.ops {
		counts[op.Kind]++
	}
	for _, k := range Kinds() {
		metrics.SetPendingOperations(string(k), counts[k])
	}
}
