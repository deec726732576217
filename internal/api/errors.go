// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/clubsync/internal/integration"
)

// apiError is the JSON body of every non-2xx response.
type apiError struct {
	Error       string `json:"error"`
	Detail      string `json:"detail,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeBadRequest writes a 400 with the given detail
func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Detail: detail})
}

// writeError maps orchestrator errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var e *integration.Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal_error", Detail: err.Error()})
		return
	}
	writeJSON(w, statusFor(e), apiError{
		Error:       string(e.Kind),
		Detail:      err.Error(),
		OperationID: e.OperationID,
	})
}

func statusFor(e *integration.Error) int {
	switch e.Kind.Category() {
	case integration.CategoryValidation:
		if e.Kind == integration.ProgramNotAvailable || e.Kind == integration.SessionNotActive {
			return http.StatusNotFound
		}
		if e.Kind == integration.AlreadyEnrolled || e.Kind == integration.TooManyActivePrograms {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case integration.CategoryEntitlement:
		return http.StatusForbidden
	case integration.CategorySync:
		if e.Kind == integration.OfflineMode {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case integration.CategoryCollaborator:
		if e.Kind == integration.ProgressDataNotFound {
			return http.StatusNotFound
		}
		if e.Queued() {
			return http.StatusAccepted
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
