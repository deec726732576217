// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	opRecommendations = "recommendations"
	opUnifiedProgress = "unified_progress"
)

// GetProgramRecommendations returns the catalog recommendations the user may
// enroll in. Programs linked to an active challenge come first.
func (o *Orchestrator) GetProgramRecommendations(ctx context.Context) (out []domain.Program, err error) {
	ctx, span := o.tracer.Start(ctx, "integration.GetProgramRecommendations")
	defer func() { finish(opRecommendations, span, err) }()

	programs, err := callValue(ctx, o, health.ServiceCatalog, o.collab.Catalog.Recommendations)
	if err != nil {
		return nil, o.fail(&Error{Kind: RecommendationsFailed, Op: opRecommendations, Cause: err})
	}

	entitled := o.collab.Entitlements.IsEntitled()
	out = slices.DeleteFunc(slices.Clone(programs), func(p domain.Program) bool {
		return p.Premium && !p.Featured && !entitled
	})

	challenges, cerr := callValue(ctx, o, health.ServiceChallenges, o.collab.Challenges.ActiveEnrollments)
	if cerr != nil {
		o.ctxLogger(ctx).Debug().Err(cerr).
			Str(log.FieldEvent, "recommendations.unranked").
			Msg("challenge signal unavailable")
		return out, nil
	}
	linked := make(map[string]bool, len(challenges))
	for _, c := range challenges {
		if c.ProgramID != "" {
			linked[c.ProgramID] = true
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Program) int {
		switch la, lb := linked[a.ID], linked[b.ID]; {
		case la == lb:
			return 0
		case la:
			return -1
		default:
			return 1
		}
	})
	return out, nil
}

// GetUnifiedProgress merges plan analytics with the health bridge activity
// and the challenges linked to the session's program. Analytics are required;
// the enrichments are best effort and reported in Unavailable when missing.
func (o *Orchestrator) GetUnifiedProgress(ctx context.Context, sessionID string) (data *UnifiedProgressData, err error) {
	ctx, span := o.tracer.Start(ctx, "integration.GetUnifiedProgress",
		trace.WithAttributes(telemetry.WorkoutAttributes("", sessionID)...))
	defer func() { finish(opUnifiedProgress, span, err) }()

	if strings.TrimSpace(sessionID) == "" {
		return nil, &Error{Kind: InvalidParameter, Op: opUnifiedProgress, Message: "session id is required"}
	}

	analytics, err := callValue(ctx, o, health.ServiceCatalog, func(cctx context.Context) (*domain.Analytics, error) {
		return o.collab.Catalog.Analytics(cctx, sessionID)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound), err == nil && analytics == nil:
		return nil, &Error{Kind: ProgressDataNotFound, Op: opUnifiedProgress, SessionID: sessionID, Cause: err}
	case err != nil:
		return nil, o.fail(&Error{Kind: ProgressDataFailed, Op: opUnifiedProgress, SessionID: sessionID, Cause: err})
	}

	data = &UnifiedProgressData{SessionID: sessionID, Analytics: *analytics}
	var (
		mu          sync.Mutex
		unavailable []health.ServiceIdentity
	)
	markUnavailable := func(id health.ServiceIdentity, cause error) {
		o.ctxLogger(ctx).Debug().Err(cause).
			Str(log.FieldTarget, string(id)).
			Str(log.FieldSessionID, sessionID).
			Msg("progress enrichment unavailable")
		mu.Lock()
		unavailable = append(unavailable, id)
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		if !o.collab.Bridge.IsAuthorized() {
			markUnavailable(health.ServiceHealthBridge, domain.ErrNotAuthorized)
			return nil
		}
		summary, err := callValue(ctx, o, health.ServiceHealthBridge, func(cctx context.Context) (*domain.ActivitySummary, error) {
			return o.collab.Bridge.ActivitySummary(cctx, sessionID)
		})
		if err != nil {
			markUnavailable(health.ServiceHealthBridge, err)
			return nil
		}
		data.Activity = summary
		return nil
	})
	g.Go(func() error {
		list, err := callValue(ctx, o, health.ServiceChallenges, o.collab.Challenges.ActiveEnrollments)
		if err != nil {
			markUnavailable(health.ServiceChallenges, err)
			return nil
		}
		for _, c := range list {
			if c.ProgramID == analytics.ProgramID {
				data.Challenges = append(data.Challenges, c)
			}
		}
		return nil
	})
	_ = g.Wait()

	slices.Sort(unavailable)
	data.Unavailable = unavailable
	return data, nil
}
