// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

const (
	opRecordWorkout    = "record_workout"
	opSyncHealthBridge = "sync_health_bridge"
)

// RecordWorkout stores a completed workout for an active session and adapts
// the workflow when the duration deviates beyond the configured threshold.
func (o *Orchestrator) RecordWorkout(ctx context.Context, workout domain.Workout, sessionID string) (res *WorkoutRecordResult, err error) {
	ctx, span := o.tracer.Start(ctx, "integration.RecordWorkout",
		trace.WithAttributes(telemetry.WorkoutAttributes(workout.ID, sessionID)...))
	defer func() { finish(opRecordWorkout, span, err) }()

	switch {
	case strings.TrimSpace(workout.ID) == "":
		return nil, &Error{Kind: InvalidParameter, Op: opRecordWorkout, SessionID: sessionID, Message: "workout id is required"}
	case strings.TrimSpace(sessionID) == "":
		return nil, &Error{Kind: InvalidParameter, Op: opRecordWorkout, Message: "session id is required"}
	case workout.TargetDuration < 0 || workout.ActualDuration < 0:
		return nil, &Error{Kind: InvalidParameter, Op: opRecordWorkout, SessionID: sessionID, Message: "durations must not be negative"}
	}
	if workout.CompletedAt.IsZero() {
		workout.CompletedAt = o.now()
	}

	failed := func() *Error { return &Error{Kind: WorkoutRecordFailed, Op: opRecordWorkout, SessionID: sessionID} }
	payload := workoutPayload(workout, sessionID)

	if o.Offline() {
		return nil, o.deferOp(ctx, failed(), queue.KindWorkoutRecord, payload, errOffline)
	}

	sessions, err := o.enrollments(ctx)
	if err != nil {
		return nil, o.deferOp(ctx, failed(), queue.KindWorkoutRecord, payload, err)
	}
	if _, ok := activeSession(sessions, func(s domain.Session) bool { return s.ID == sessionID }); !ok {
		return nil, &Error{Kind: SessionNotActive, Op: opRecordWorkout, SessionID: sessionID}
	}

	err = o.call(ctx, health.ServiceCatalog, func(cctx context.Context) error {
		return o.collab.Catalog.RecordWorkout(cctx, workout, sessionID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &Error{Kind: SessionNotActive, Op: opRecordWorkout, SessionID: sessionID, Cause: err}
	}
	if err != nil {
		return nil, o.deferOp(ctx, failed(), queue.KindWorkoutRecord, payload, err)
	}

	res = &WorkoutRecordResult{
		Workout:            workout,
		SessionID:          sessionID,
		HealthBridgeSynced: o.mirrorWorkout(ctx, workout),
	}
	o.adapt(ctx, res)

	o.ctxLogger(ctx).Info().
		Str(log.FieldEvent, "workout.recorded").
		Str(log.FieldWorkoutID, workout.ID).
		Str(log.FieldSessionID, sessionID).
		Bool("adaptation_triggered", res.AdaptationTriggered).
		Msg("workout recorded")
	return res, nil
}

// adapt asks for a new workflow when the duration deviation is above the
// threshold. A failed regeneration is queued as progress_sync.
func (o *Orchestrator) adapt(ctx context.Context, res *WorkoutRecordResult) {
	deviation := res.Workout.DurationDeviation()
	if deviation <= o.Settings().DeviationThreshold {
		return
	}
	res.AdaptationTriggered = true
	reason := adaptationReason(res.Workout, deviation)

	wf, err := callValue(ctx, o, health.ServicePlanEngine, func(cctx context.Context) (domain.Workflow, error) {
		return o.collab.Plan.RegenerateWorkflow(cctx, res.SessionID, reason)
	})
	if err == nil {
		res.Workflow = &wf
		return
	}

	op, qerr := o.queue.Enqueue(queue.KindProgressSync, queue.Payload{
		payloadSessionID: res.SessionID,
		payloadReason:    reason,
	}, err)
	logger := o.ctxLogger(ctx).Warn().Err(err).
		Str(log.FieldEvent, "adaptation.deferred").
		Str(log.FieldSessionID, res.SessionID)
	if qerr != nil {
		logger.AnErr("queue_error", qerr).Msg("workflow regeneration dropped")
		return
	}
	res.AdaptationOperationID = op.ID.String()
	logger.Str(log.FieldOperationID, res.AdaptationOperationID).Msg("workflow regeneration queued")
	o.publishQueue()
}

func adaptationReason(w domain.Workout, deviation float64) string {
	direction := "longer"
	if w.ActualDuration < w.TargetDuration {
		direction = "shorter"
	}
	return fmt.Sprintf("workout %s ran %.0f%% %s than planned", w.ID, deviation*100, direction)
}

// SyncHealthBridge pushes every workout of a session to the health bridge.
// Missing authorization fails without queueing.
func (o *Orchestrator) SyncHealthBridge(ctx context.Context, sessionID string) (err error) {
	ctx, span := o.tracer.Start(ctx, "integration.SyncHealthBridge",
		trace.WithAttributes(telemetry.WorkoutAttributes("", sessionID)...))
	defer func() { finish(opSyncHealthBridge, span, err) }()

	if strings.TrimSpace(sessionID) == "" {
		return &Error{Kind: InvalidParameter, Op: opSyncHealthBridge, Message: "session id is required"}
	}
	failed := func() *Error { return &Error{Kind: HealthBridgeSyncFailed, Op: opSyncHealthBridge, SessionID: sessionID} }
	if !o.collab.Bridge.IsAuthorized() {
		e := failed()
		e.Cause = domain.ErrNotAuthorized
		return o.fail(e)
	}
	payload := queue.Payload{payloadSessionID: sessionID}
	if o.Offline() {
		return o.deferOp(ctx, failed(), queue.KindHealthBridgeSync, payload, errOffline)
	}

	if err := o.mirrorSession(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			e := failed()
			e.Cause = err
			return o.fail(e)
		}
		return o.deferOp(ctx, failed(), queue.KindHealthBridgeSync, payload, err)
	}
	return nil
}

func (o *Orchestrator) mirrorSession(ctx context.Context, sessionID string) error {
	workouts, err := callValue(ctx, o, health.ServiceCatalog, func(cctx context.Context) ([]domain.Workout, error) {
		return o.collab.Catalog.Workouts(cctx, sessionID)
	})
	if err != nil {
		return fmt.Errorf("list workouts: %w", err)
	}
	for _, w := range workouts {
		if err := o.call(ctx, health.ServiceHealthBridge, func(cctx context.Context) error {
			return o.collab.Bridge.MirrorWorkout(cctx, w)
		}); err != nil {
			return fmt.Errorf("mirror workout %s: %w", w.ID, err)
		}
	}
	return nil
}

func workoutPayload(w domain.Workout, sessionID string) queue.Payload {
	return queue.Payload{
		payloadSessionID:      sessionID,
		payloadWorkoutID:      w.ID,
		payloadWorkoutName:    w.Name,
		payloadTargetDuration: int64(w.TargetDuration),
		payloadActualDuration: int64(w.ActualDuration),
		payloadCompletedAt:    w.CompletedAt.Format(time.RFC3339Nano),
	}
}

func workoutFromPayload(p queue.Payload) (domain.Workout, string, error) {
	w := domain.Workout{
		ID:             p.String(payloadWorkoutID),
		Name:           p.String(payloadWorkoutName),
		TargetDuration: time.Duration(p.Float(payloadTargetDuration)),
		ActualDuration: time.Duration(p.Float(payloadActualDuration)),
	}
	sessionID := p.String(payloadSessionID)
	if w.ID == "" || sessionID == "" {
		return domain.Workout{}, "", errors.New("workout payload without workout or session id")
	}
	completed, err := time.Parse(time.RFC3339Nano, p.String(payloadCompletedAt))
	if err != nil {
		return domain.Workout{}, "", fmt.Errorf("workout payload completed_at: %w", err)
	}
	w.CompletedAt = completed
	return w, sessionID, nil
}
