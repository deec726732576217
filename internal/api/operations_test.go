// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnroll_Route(t *testing.T) {
	s, _, b := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/enrollments", map[string]any{"program_id": "couch-to-5k", "starting_weight": 50})
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[integration.UnifiedProgramResult](t, w)
	assert.Equal(t, "couch-to-5k", res.Session.ProgramID)
	assert.Equal(t, 1, b.Catalog.EnrollmentCount("couch-to-5k"))

	tests := []struct {
		name string
		body any
		code int
		kind string
	}{
		{"already enrolled", map[string]any{"program_id": "couch-to-5k", "starting_weight": 50}, http.StatusConflict, "already_enrolled"},
		{"unknown program", map[string]any{"program_id": "nope", "starting_weight": 50}, http.StatusNotFound, "program_not_available"},
		{"weight out of range", map[string]any{"program_id": "strength-basics", "starting_weight": 0}, http.StatusBadRequest, "invalid_parameter"},
		{"premium", map[string]any{"program_id": "hypertrophy-pro", "starting_weight": 50}, http.StatusForbidden, "premium_required"},
		{"unknown field", map[string]any{"program": "couch-to-5k"}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/v1/enrollments", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.kind, decode[apiError](t, w).Error)
		})
	}
}

func TestEnroll_RouteOfflineIsAccepted(t *testing.T) {
	s, o, b := newTestServer(t)
	b.SetNetwork(false)
	require.NoError(t, o.SetConnectivity(context.Background(), false, "test"))

	w := do(t, s, http.MethodPost, "/api/v1/enrollments", map[string]any{"program_id": "couch-to-5k", "starting_weight": 50})
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode[apiError](t, w)
	assert.Equal(t, "enrollment_failed", body.Error)
	require.Len(t, o.PendingOperations(), 1)
	assert.Equal(t, o.PendingOperations()[0].ID.String(), body.OperationID)
}

func TestWorkoutAndProgress_Routes(t *testing.T) {
	s, o, b := newTestServer(t)
	ctx := context.Background()
	enrolled, err := o.Enroll(ctx, "couch-to-5k", domain.StartingParameters{StartingWeight: 50})
	require.NoError(t, err)
	sessionID := enrolled.Session.ID

	w := do(t, s, http.MethodPost, "/api/v1/sessions/"+sessionID+"/workouts",
		map[string]any{"id": "w1", "name": "Intervals", "target_seconds": 2400, "actual_seconds": 1200})
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[integration.WorkoutRecordResult](t, w)
	assert.True(t, rec.AdaptationTriggered)
	assert.False(t, rec.Workout.CompletedAt.IsZero())

	w = do(t, s, http.MethodPost, "/api/v1/sessions/unknown/workouts",
		map[string]any{"id": "w2", "target_seconds": 60, "actual_seconds": 60})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/sessions/"+sessionID+"/progress", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "progress_data_not_found", decode[apiError](t, w).Error)

	b.Catalog.SetAnalytics(sessionID, &domain.Analytics{SessionID: sessionID, ProgramID: "couch-to-5k", CompletedWorkouts: 1})
	w = do(t, s, http.MethodGet, "/api/v1/sessions/"+sessionID+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[integration.UnifiedProgressData](t, w).Analytics.CompletedWorkouts)

	w = do(t, s, http.MethodPost, "/api/v1/sessions/"+sessionID+"/health-bridge-sync", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecommendations_Route(t *testing.T) {
	s, _, b := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/programs/recommended", nil)
	require.Equal(t, http.StatusOK, w.Code)
	programs := decode[[]domain.Program](t, w)
	require.NotEmpty(t, programs)
	for _, p := range programs {
		assert.False(t, p.Premium && !p.Featured, "unentitled users only see free programs")
	}

	b.Catalog.Fail("Recommendations", assert.AnError)
	w = do(t, s, http.MethodGet, "/api/v1/programs/recommended", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
