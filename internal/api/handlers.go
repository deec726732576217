// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/clubsync/internal/integration"
	"github.com/ManuGH/clubsync/internal/log"
)

const (
	defaultDeadLetterLimit = 100
	maxBodyBytes           = 4 << 10
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type errorsResponse struct {
	Current  []integration.ErrorRecord     `json:"current"`
	Critical []integration.ErrorRecord     `json:"critical"`
	Failed   []integration.FailedOperation `json:"failed_operations"`
}

type connectivityRequest struct {
	Online *bool  `json:"online"`
	Reason string `json:"reason"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.cfg.Version})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	st := s.orch.Status()
	if st.State != integration.StatusReady {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: string(st.State)})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: string(st.State), Version: s.cfg.Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.PendingOperations())
}

func (s *Server) handleErrors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, errorsResponse{
		Current:  s.orch.CurrentErrors(),
		Critical: s.orch.CriticalErrors(),
		Failed:   s.orch.FailedOperations(),
	})
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	s.orch.ClearErrors()
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().Str(log.FieldEvent, "errors.cleared").Msg("error history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.PerformFullSync(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Online == nil {
		writeBadRequest(w, "online is required")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "operator request"
	}
	if err := s.orch.SetConnectivity(r.Context(), *req.Online, reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

// decodeBody strictly decodes a small JSON body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.dead == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Detail: "dead-letter archive disabled"})
		return
	}
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.dead.List(r.Context(), limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "deadletter.list_failed").Msg("listing dead letters failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
