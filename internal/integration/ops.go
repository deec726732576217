// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/metrics"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Payload keys of queued operations.
const (
	payloadProgramID      = "program_id"
	payloadStartingWeight = "starting_weight"
	payloadSessionID      = "session_id"
	payloadWorkoutID      = "workout_id"
	payloadWorkoutName    = "workout_name"
	payloadTargetDuration = "target_duration_ns"
	payloadActualDuration = "actual_duration_ns"
	payloadCompletedAt    = "completed_at"
	payloadReason         = "reason"
)

// outcomeOf maps an operation result to the metric outcome label.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var e *Error
	if !errors.As(err, &e) {
		return "failed"
	}
	switch {
	case e.Queued():
		return "queued"
	case e.Kind.Category() == CategoryValidation, e.Kind.Category() == CategoryEntitlement:
		return "rejected"
	}
	return "failed"
}

// finish ends the operation span and counts the outcome.
func finish(op string, span trace.Span, err error) {
	var e *Error
	if errors.As(err, &e) {
		span.SetAttributes(telemetry.ErrorAttributes(string(e.Kind))...)
	}
	telemetry.End(span, err)
	metrics.RecordOperation(op, outcomeOf(err))
}

// deferOp queues kind for retry and returns e with the cause and the
// operation ID filled in. The error is recorded in CurrentErrors.
func (o *Orchestrator) deferOp(ctx context.Context, e *Error, kind queue.Kind, payload queue.Payload, cause error) *Error {
	e.Cause = cause
	op, err := o.queue.Enqueue(kind, payload, cause)
	if err != nil {
		e.Cause = errors.Join(cause, err)
		return o.fail(e)
	}
	e.OperationID = op.ID.String()
	trace.SpanFromContext(ctx).SetAttributes(telemetry.QueuedAttributes(e.OperationID, string(kind))...)
	o.ctxLogger(ctx).Warn().
		Err(cause).
		Str(log.FieldEvent, e.Op+".queued").
		Str(log.FieldOperationID, e.OperationID).
		Str(log.FieldKind, string(kind)).
		Bool("offline", o.mode.Offline()).
		Msg("operation deferred to retry queue")
	o.publishQueue()
	return o.fail(e)
}

// mirrorEnrollment is best effort.
func (o *Orchestrator) mirrorEnrollment(ctx context.Context, session domain.Session) bool {
	if !o.collab.Bridge.IsAuthorized() {
		return false
	}
	err := o.call(ctx, health.ServiceHealthBridge, func(cctx context.Context) error {
		return o.collab.Bridge.MirrorEnrollment(cctx, session)
	})
	if err != nil {
		o.ctxLogger(ctx).Debug().Err(err).
			Str(log.FieldSessionID, session.ID).
			Str(log.FieldEvent, "bridge.mirror_skipped").
			Msg("enrollment not mirrored to health bridge")
		return false
	}
	return true
}

// mirrorWorkout is best effort.
func (o *Orchestrator) mirrorWorkout(ctx context.Context, w domain.Workout) bool {
	if !o.collab.Bridge.IsAuthorized() {
		return false
	}
	err := o.call(ctx, health.ServiceHealthBridge, func(cctx context.Context) error {
		return o.collab.Bridge.MirrorWorkout(cctx, w)
	})
	if err != nil {
		o.ctxLogger(ctx).Debug().Err(err).
			Str(log.FieldWorkoutID, w.ID).
			Str(log.FieldEvent, "bridge.mirror_skipped").
			Msg("workout not mirrored to health bridge")
		return false
	}
	return true
}

func (o *Orchestrator) enrollments(ctx context.Context) ([]domain.Session, error) {
	return callValue(ctx, o, health.ServiceCatalog, o.collab.Catalog.Enrollments)
}

func activeSession(sessions []domain.Session, match func(domain.Session) bool) (domain.Session, bool) {
	for _, s := range sessions {
		if s.Active && match(s) {
			return s, true
		}
	}
	return domain.Session{}, false
}
