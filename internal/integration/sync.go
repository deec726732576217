// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/clubsync/internal/connectivity"
	"github.com/ManuGH/clubsync/internal/deadletter"
	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/metrics"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	opInitialize = "initialize"
	opFullSync   = "full_sync"
)

// Initialize establishes a user session when there is none and runs the
// first health pass. Without a session the orchestrator goes offline and
// reports failed; calling Initialize again retries.
func (o *Orchestrator) Initialize(ctx context.Context) (err error) {
	ctx, span := o.tracer.Start(ctx, "integration.Initialize")
	defer func() { finish(opInitialize, span, err) }()

	o.setStatus(StatusInitializing, nil)

	if !o.collab.Auth.IsAuthenticated() {
		if err := o.call(ctx, health.ServiceAuth, o.collab.Auth.EstablishAnonymousSession); err != nil {
			return o.escalate(ctx, opInitialize, "establish anonymous session", err)
		}
	}

	o.mu.Lock()
	o.criticalErrors = nil
	forced := o.forcedOffline
	o.forcedOffline = false
	o.mu.Unlock()

	if forced {
		if err := o.SetConnectivity(ctx, true, "session established"); err != nil {
			if o.Status().State == StatusFailed {
				return &Error{Kind: InitializationFailed, Op: opInitialize, Message: "session lost during recovery sync", Cause: err}
			}
			o.ctxLogger(ctx).Warn().Err(err).
				Str(log.FieldEvent, "initialize.sync_failed").
				Msg("sync after recovery failed")
		}
	} else {
		o.checkHealth(ctx, true)
	}
	if o.Status().State == StatusFailed {
		return &Error{Kind: InitializationFailed, Op: opInitialize, Message: "session lost during health check"}
	}

	o.setStatus(StatusReady, nil)
	o.ctxLogger(ctx).Info().
		Str(log.FieldEvent, "initialize.ready").
		Str("mode", string(o.mode.Mode())).
		Msg("integration ready")
	return nil
}

// escalate records a critical session failure, forces offline mode and marks
// the integration failed. Initialize is the way back to ready.
func (o *Orchestrator) escalate(ctx context.Context, op, message string, cause error) *Error {
	e := &Error{Kind: InitializationFailed, Op: op, Message: message, Cause: cause}
	o.recordError(e)
	o.mu.Lock()
	o.forcedOffline = true
	o.mu.Unlock()
	o.mode.ForceOffline(op + ": " + message + ": " + cause.Error())
	o.setStatus(StatusFailed, e)
	o.ctxLogger(ctx).Error().Err(cause).
		Str(log.FieldEvent, op+".critical").
		Msg("integration failed")
	return e
}

// SetConnectivity applies an explicit connectivity notification. Going from
// offline to online runs one full sync and returns its error.
func (o *Orchestrator) SetConnectivity(ctx context.Context, online bool, reason string) error {
	t, changed := o.mode.SetConnectivity(online, reason)
	if !changed || t.To != connectivity.Online {
		return nil
	}
	return o.PerformFullSync(ctx)
}

// CheckHealth runs one health pass, replaces the mapping and lets the mode
// controller observe it. Coming back online runs one full sync.
func (o *Orchestrator) CheckHealth(ctx context.Context) health.Snapshot {
	return o.checkHealth(ctx, true)
}

func (o *Orchestrator) checkHealth(ctx context.Context, allowSync bool) health.Snapshot {
	wasOffline := o.Offline()
	next := o.monitor.CheckAll(ctx)
	prev := o.replaceHealth(next)

	t, changed := o.mode.ObserveHealth(prev, next)
	if !changed && wasOffline && next.Get(health.ServiceAuth).IsError() && o.restoreSession(ctx) {
		next = o.monitor.CheckAll(ctx)
		prev = o.replaceHealth(next)
		t, changed = o.mode.ObserveHealth(prev, next)
	}
	if changed && t.To == connectivity.Online && allowSync {
		if err := o.PerformFullSync(ctx); err != nil {
			o.ctxLogger(ctx).Warn().Err(err).
				Str(log.FieldEvent, "reconnect.sync_failed").
				Msg("sync after reconnect failed")
		}
	}
	return o.ServiceHealth()
}

// restoreSession tries to re-establish a lost session while offline. A
// failed integration is left to Initialize. A network failure keeps waiting;
// any other failure is critical.
func (o *Orchestrator) restoreSession(ctx context.Context) bool {
	if o.Status().State == StatusFailed || o.collab.Auth.IsAuthenticated() {
		return false
	}
	err := o.call(ctx, health.ServiceAuth, o.collab.Auth.EstablishAnonymousSession)
	switch {
	case err == nil:
		o.ctxLogger(ctx).Info().Str(log.FieldEvent, "session.restored").Msg("user session re-established")
		return true
	case IsNetworkError(err):
		o.ctxLogger(ctx).Debug().Err(err).Str(log.FieldEvent, "session.restore_deferred").Msg("session not restored, network unavailable")
	default:
		o.escalate(ctx, "restore_session", "re-establish session", err)
	}
	return false
}

// onTransition applies the side effects of a mode change.
func (o *Orchestrator) onTransition(t connectivity.Transition) {
	switch t.To {
	case connectivity.Offline:
		o.setSyncStatus(SyncStateOffline, errors.New(t.Reason))
		next := o.ServiceHealth()
		if !next.Get(health.ServiceNetwork).IsError() {
			next[health.ServiceNetwork] = health.Failed(fmt.Errorf("%s: %w", t.Reason, domain.ErrNetworkUnavailable))
			o.replaceHealth(next)
		}
		o.sched.pause()
	case connectivity.Online:
		o.resetBreakers()
		o.setSyncStatus(SyncStateIdle, nil)
		o.sched.resume()
	}
	o.publish(TopicModeChanged, ModeChanged{Transition: t})
}

// PerformFullSync refreshes the catalog and challenges, re-establishes a
// missing session, retries every queued operation regardless of backoff and
// re-checks health. Full syncs are serialized.
func (o *Orchestrator) PerformFullSync(ctx context.Context) (err error) {
	if o.Offline() {
		metrics.RecordFullSync("offline", 0)
		return &Error{Kind: OfflineMode, Op: opFullSync, Cause: errOffline}
	}

	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	ctx, span := o.tracer.Start(ctx, "integration.PerformFullSync")
	start := time.Now()
	defer func() {
		finish(opFullSync, span, err)
		result := "completed"
		if err != nil {
			result = "failed"
		}
		metrics.RecordFullSync(result, time.Since(start))
	}()

	o.setSyncStatus(SyncStateSyncing, nil)
	logger := log.WithContext(ctx, o.logger)

	if err := o.refresh(ctx); err != nil {
		e := &Error{Kind: SyncFailed, Op: opFullSync, Message: "refresh", Cause: err}
		if IsNetworkError(err) {
			o.recordError(e)
			o.mode.SetConnectivity(false, "full sync: "+err.Error())
			return e
		}
		if o.Offline() {
			// The session failure was escalated; sync status already reads offline.
			o.recordError(e)
			return e
		}
		o.setSyncStatus(SyncStateFailed, err)
		return o.fail(e)
	}

	res, err := o.queue.Drain(ctx, queue.DrainOptions{Force: true})
	span.SetAttributes(telemetry.DrainAttributes(res.Attempted, res.Succeeded, len(res.Failed))...)
	o.settleDrain(ctx, res)
	if err != nil {
		e := &Error{Kind: SyncFailed, Op: opFullSync, Message: "drain", Cause: err}
		if errors.Is(err, queue.ErrPaused) {
			e.Cause = errors.Join(err, errOffline)
			return e
		}
		o.setSyncStatus(SyncStateFailed, err)
		return o.fail(e)
	}

	o.checkHealth(ctx, false)
	if o.Offline() {
		return &Error{Kind: SyncFailed, Op: opFullSync, Message: "went offline during health check", Cause: errOffline}
	}

	o.setSyncStatus(SyncStateCompleted, nil)
	logger.Info().
		Str(log.FieldEvent, "sync.completed").
		Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).
		Int("requeued", res.Requeued).
		Int("failed", len(res.Failed)).
		Int("pending", o.queue.Len()).
		Dur("duration", time.Since(start)).
		Msg("full sync completed")
	return nil
}

// refresh runs the catalog and challenge refreshes and the session check
// concurrently. A session failure that is not network-caused is escalated.
func (o *Orchestrator) refresh(ctx context.Context) error {
	var catalogErr, challengeErr, authErr error
	var g errgroup.Group
	g.Go(func() error {
		catalogErr = o.call(ctx, health.ServiceCatalog, o.collab.Catalog.Refresh)
		return nil
	})
	g.Go(func() error {
		challengeErr = o.call(ctx, health.ServiceChallenges, o.collab.Challenges.Refresh)
		return nil
	})
	g.Go(func() error {
		if o.collab.Auth.IsAuthenticated() {
			return nil
		}
		authErr = o.call(ctx, health.ServiceAuth, o.collab.Auth.EstablishAnonymousSession)
		return nil
	})
	_ = g.Wait()

	if authErr != nil && !IsNetworkError(authErr) {
		o.escalate(ctx, opFullSync, "re-establish session", authErr)
	}
	var errs []error
	if catalogErr != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", catalogErr))
	}
	if challengeErr != nil {
		errs = append(errs, fmt.Errorf("challenges: %w", challengeErr))
	}
	if authErr != nil {
		errs = append(errs, fmt.Errorf("session: %w", authErr))
	}
	return errors.Join(errs...)
}

// settleDrain records operations that exhausted their retries.
func (o *Orchestrator) settleDrain(ctx context.Context, res queue.DrainResult) {
	now := o.now()
	for _, f := range res.Failed {
		o.mu.Lock()
		o.failedOps = bounded(append(o.failedOps, FailedOperation{
			Operation: f.Operation,
			Cause:     f.Cause.Error(),
			FailedAt:  now,
		}), o.settings.ErrorHistory)
		o.mu.Unlock()

		o.recordError(&Error{
			Kind:        OperationFailed,
			Op:          string(f.Operation.Kind),
			OperationID: f.Operation.ID.String(),
			Message:     fmt.Sprintf("gave up after %d attempts", f.Operation.RetryCount),
			Cause:       f.Cause,
		})
		if o.archive != nil {
			if err := o.archive.Archive(ctx, deadletter.FromFailure(f, now)); err != nil {
				o.ctxLogger(ctx).Error().Err(err).
					Str(log.FieldOperationID, f.Operation.ID.String()).
					Str(log.FieldEvent, "deadletter.archive_failed").
					Msg("failed operation not archived")
			}
		}
	}
	if res.Attempted > 0 {
		o.publishQueue()
	}
}
