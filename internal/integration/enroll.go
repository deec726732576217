// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

const opEnroll = "enroll"

// Enroll enrolls the user in a program and generates its workflow.
// Concurrent calls for the same program and starting parameters share one
// attempt and its result; a concurrent call with different parameters fails
// with already_enrolled. A caller whose ctx ends stops waiting, the shared
// attempt keeps running.
func (o *Orchestrator) Enroll(ctx context.Context, programID string, params domain.StartingParameters) (*UnifiedProgramResult, error) {
	o.enrollMu.Lock()
	if inflight, ok := o.enrollInflight[programID]; ok && inflight != params {
		o.enrollMu.Unlock()
		return nil, &Error{Kind: AlreadyEnrolled, Op: opEnroll, ProgramID: programID,
			Message: "enrollment with different starting parameters in progress"}
	}
	o.enrollInflight[programID] = params
	ch := o.enrollGroup.DoChan(programID, func() (any, error) {
		defer func() {
			o.enrollMu.Lock()
			delete(o.enrollInflight, programID)
			o.enrollMu.Unlock()
		}()
		actx, span := o.tracer.Start(context.WithoutCancel(ctx), "integration.Enroll",
			trace.WithAttributes(telemetry.EnrollAttributes(programID, params.StartingWeight)...))
		res, err := o.enroll(actx, programID, params)
		finish(opEnroll, span, err)
		return &enrollAttempt{params: params, result: res}, err
	})
	o.enrollMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("enroll %s: %w", programID, ctx.Err())
	case r := <-ch:
		if attempt, ok := r.Val.(*enrollAttempt); ok && attempt.params != params {
			return nil, &Error{Kind: AlreadyEnrolled, Op: opEnroll, ProgramID: programID,
				Message: "enrollment with different starting parameters in progress"}
		}
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*enrollAttempt).result
		return &res, nil
	}
}

type enrollAttempt struct {
	params domain.StartingParameters
	result *UnifiedProgramResult
}

func (o *Orchestrator) enroll(ctx context.Context, programID string, params domain.StartingParameters) (*UnifiedProgramResult, error) {
	s := o.Settings()
	if strings.TrimSpace(programID) == "" {
		return nil, &Error{Kind: InvalidParameter, Op: opEnroll, Message: "program id is required"}
	}
	if w := params.StartingWeight; w < s.MinStartingWeight || w > s.MaxStartingWeight {
		return nil, &Error{Kind: InvalidParameter, Op: opEnroll, ProgramID: programID,
			Message: fmt.Sprintf("starting weight %g outside [%g, %g]", w, s.MinStartingWeight, s.MaxStartingWeight)}
	}

	failed := func() *Error { return &Error{Kind: EnrollmentFailed, Op: opEnroll, ProgramID: programID} }
	payload := queue.Payload{payloadProgramID: programID, payloadStartingWeight: params.StartingWeight}

	if o.Offline() {
		if o.enrollmentPending(programID) {
			return nil, &Error{Kind: AlreadyEnrolled, Op: opEnroll, ProgramID: programID, Message: "enrollment already queued"}
		}
		return nil, o.deferOp(ctx, failed(), queue.KindEnrollment, payload, errOffline)
	}

	program, err := callValue(ctx, o, health.ServiceCatalog, func(cctx context.Context) (domain.Program, error) {
		return o.collab.Catalog.Program(cctx, programID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &Error{Kind: ProgramNotAvailable, Op: opEnroll, ProgramID: programID, Cause: err}
	}
	if err != nil {
		return nil, o.deferOp(ctx, failed(), queue.KindEnrollment, payload, err)
	}

	entitled := o.collab.Entitlements.IsEntitled()
	if program.Premium && !program.Featured && !entitled {
		return nil, &Error{Kind: PremiumRequired, Op: opEnroll, ProgramID: programID}
	}
	if o.enrollmentPending(programID) {
		return nil, &Error{Kind: AlreadyEnrolled, Op: opEnroll, ProgramID: programID, Message: "enrollment already queued"}
	}

	sessions, err := o.enrollments(ctx)
	if err != nil {
		return nil, o.deferOp(ctx, failed(), queue.KindEnrollment, payload, err)
	}
	if _, ok := activeSession(sessions, func(s domain.Session) bool { return s.ProgramID == programID }); ok {
		return nil, &Error{Kind: AlreadyEnrolled, Op: opEnroll, ProgramID: programID}
	}
	active := 0
	for _, sess := range sessions {
		if sess.Active {
			active++
		}
	}
	if pending := o.pendingEnrollments(sessions); active+pending >= s.MaxActivePrograms {
		return nil, &Error{Kind: TooManyActivePrograms, Op: opEnroll, ProgramID: programID,
			Message: fmt.Sprintf("%d active and %d queued of %d allowed", active, pending, s.MaxActivePrograms)}
	}

	session, err := callValue(ctx, o, health.ServiceCatalog, func(cctx context.Context) (domain.Session, error) {
		return o.collab.Catalog.Enroll(cctx, program, params)
	})
	if err != nil {
		return nil, o.deferOp(ctx, failed(), queue.KindEnrollment, payload, err)
	}
	workflow, err := callValue(ctx, o, health.ServicePlanEngine, func(cctx context.Context) (domain.Workflow, error) {
		return o.collab.Plan.GenerateWorkflow(cctx, session)
	})
	if err != nil {
		e := failed()
		e.SessionID = session.ID
		return nil, o.deferOp(ctx, e, queue.KindEnrollment, payload, fmt.Errorf("generate workflow: %w", err))
	}

	res := &UnifiedProgramResult{
		Program:            program,
		Session:            session,
		Workflow:           workflow,
		HealthBridgeSynced: o.mirrorEnrollment(ctx, session),
		PremiumUnlocked:    entitled,
	}
	o.ctxLogger(ctx).Info().
		Str(log.FieldEvent, "enroll.completed").
		Str(log.FieldProgramID, programID).
		Str(log.FieldSessionID, session.ID).
		Bool("bridge_synced", res.HealthBridgeSynced).
		Msg("enrolled in program")
	return res, nil
}

func (o *Orchestrator) enrollmentPending(programID string) bool {
	return o.queue.Any(func(op queue.PendingOperation) bool {
		return op.Kind == queue.KindEnrollment && op.Payload.String(payloadProgramID) == programID
	})
}

// pendingEnrollments counts the programs with a queued enrollment that has
// no active session yet. A queued op whose session already exists is only
// waiting for its workflow and is counted as active.
func (o *Orchestrator) pendingEnrollments(sessions []domain.Session) int {
	programs := make(map[string]struct{})
	for _, op := range o.queue.Snapshot() {
		if op.Kind != queue.KindEnrollment {
			continue
		}
		programID := op.Payload.String(payloadProgramID)
		if _, ok := activeSession(sessions, func(s domain.Session) bool { return s.ProgramID == programID }); ok {
			continue
		}
		programs[programID] = struct{}{}
	}
	return len(programs)
}

// retryEnrollment replays a queued enrollment. An active session for the
// program means an earlier attempt reached the catalog, so it is reused.
func (o *Orchestrator) retryEnrollment(ctx context.Context, op queue.PendingOperation) error {
	programID := op.Payload.String(payloadProgramID)
	params := domain.StartingParameters{StartingWeight: op.Payload.Float(payloadStartingWeight)}
	if programID == "" {
		return queue.Permanent(errors.New("enrollment payload without program id"))
	}

	sessions, err := o.enrollments(ctx)
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}
	session, ok := activeSession(sessions, func(s domain.Session) bool { return s.ProgramID == programID })
	if !ok {
		program, err := callValue(ctx, o, health.ServiceCatalog, func(cctx context.Context) (domain.Program, error) {
			return o.collab.Catalog.Program(cctx, programID)
		})
		if errors.Is(err, domain.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("program %q: %w", programID, err))
		}
		if err != nil {
			return fmt.Errorf("load program: %w", err)
		}
		if session, err = callValue(ctx, o, health.ServiceCatalog, func(cctx context.Context) (domain.Session, error) {
			return o.collab.Catalog.Enroll(cctx, program, params)
		}); err != nil {
			return fmt.Errorf("enroll: %w", err)
		}
	}

	if _, err := callValue(ctx, o, health.ServicePlanEngine, func(cctx context.Context) (domain.Workflow, error) {
		return o.collab.Plan.GenerateWorkflow(cctx, session)
	}); err != nil {
		return fmt.Errorf("generate workflow: %w", err)
	}
	o.mirrorEnrollment(ctx, session)
	return nil
}
