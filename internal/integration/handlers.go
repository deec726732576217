// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/queue"
)

// retryHandlers is the dispatch table of the retry queue, one handler per kind.
func (o *Orchestrator) retryHandlers() queue.Handlers {
	return queue.Handlers{
		Enrollment:       o.retryEnrollment,
		WorkoutRecord:    o.retryWorkoutRecord,
		ProgressSync:     o.retryProgressSync,
		HealthBridgeSync: o.retryHealthBridgeSync,
	}
}

// retryWorkoutRecord replays a workout. The catalog dedupes on the workout
// ID, so a replay after a lost response records it once.
func (o *Orchestrator) retryWorkoutRecord(ctx context.Context, op queue.PendingOperation) error {
	w, sessionID, err := workoutFromPayload(op.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	err = o.call(ctx, health.ServiceCatalog, func(cctx context.Context) error {
		return o.collab.Catalog.RecordWorkout(cctx, w, sessionID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("session %s: %w", sessionID, err))
	}
	if err != nil {
		return fmt.Errorf("record workout: %w", err)
	}

	o.mirrorWorkout(ctx, w)
	res := &WorkoutRecordResult{Workout: w, SessionID: sessionID}
	o.adapt(ctx, res)
	return nil
}

func (o *Orchestrator) retryProgressSync(ctx context.Context, op queue.PendingOperation) error {
	sessionID := op.Payload.String(payloadSessionID)
	if sessionID == "" {
		return queue.Permanent(errors.New("progress sync payload without session id"))
	}
	reason := op.Payload.String(payloadReason)
	_, err := callValue(ctx, o, health.ServicePlanEngine, func(cctx context.Context) (domain.Workflow, error) {
		return o.collab.Plan.RegenerateWorkflow(cctx, sessionID, reason)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("workflow for session %s: %w", sessionID, err))
	}
	if err != nil {
		return fmt.Errorf("regenerate workflow: %w", err)
	}
	o.ctxLogger(ctx).Info().
		Str(log.FieldEvent, "adaptation.applied").
		Str(log.FieldSessionID, sessionID).
		Msg("deferred workflow regeneration applied")
	return nil
}

func (o *Orchestrator) retryHealthBridgeSync(ctx context.Context, op queue.PendingOperation) error {
	sessionID := op.Payload.String(payloadSessionID)
	if sessionID == "" {
		return queue.Permanent(errors.New("health bridge payload without session id"))
	}
	if !o.collab.Bridge.IsAuthorized() {
		return queue.Permanent(domain.ErrNotAuthorized)
	}
	if err := o.mirrorSession(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			return queue.Permanent(err)
		}
		return err
	}
	return nil
}
