// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/clubsync/internal/domain"
)

type enrollRequest struct {
	ProgramID      string  `json:"program_id"`
	StartingWeight float64 `json:"starting_weight"`
}

// workoutRequest carries durations in seconds. CompletedAt defaults to the
// time the request is handled.
type workoutRequest struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	TargetSeconds int64      `json:"target_seconds"`
	ActualSeconds int64      `json:"actual_seconds"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (req workoutRequest) workout(now time.Time) domain.Workout {
	completed := now
	if req.CompletedAt != nil {
		completed = *req.CompletedAt
	}
	return domain.Workout{
		ID:             strings.TrimSpace(req.ID),
		Name:           req.Name,
		TargetDuration: time.Duration(req.TargetSeconds) * time.Second,
		ActualDuration: time.Duration(req.ActualSeconds) * time.Second,
		CompletedAt:    completed,
	}
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.orch.Enroll(r.Context(), strings.TrimSpace(req.ProgramID),
		domain.StartingParameters{StartingWeight: req.StartingWeight})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRecordWorkout(w http.ResponseWriter, r *http.Request) {
	var req workoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.orch.RecordWorkout(r.Context(), req.workout(time.Now().UTC()), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	programs, err := s.orch.GetProgramRecommendations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, programs)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	data, err := s.orch.GetUnifiedProgress(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleHealthBridgeSync(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.SyncHealthBridge(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
