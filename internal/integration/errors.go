// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"errors"
	"net"
	"strings"

	"github.com/ManuGH/clubsync/internal/domain"
)

// ErrorKind is the closed set of orchestrator failures.
type ErrorKind string

const (
	InvalidParameter      ErrorKind = "invalid_parameter"
	ProgramNotAvailable   ErrorKind = "program_not_available"
	AlreadyEnrolled       ErrorKind = "already_enrolled"
	TooManyActivePrograms ErrorKind = "too_many_active_programs"
	SessionNotActive      ErrorKind = "session_not_active"

	PremiumRequired ErrorKind = "premium_required"

	EnrollmentFailed       ErrorKind = "enrollment_failed"
	WorkoutRecordFailed    ErrorKind = "workout_record_failed"
	RecommendationsFailed  ErrorKind = "recommendations_failed"
	ProgressDataFailed     ErrorKind = "progress_data_failed"
	ProgressDataNotFound   ErrorKind = "progress_data_not_found"
	HealthBridgeSyncFailed ErrorKind = "health_bridge_sync_failed"

	SyncFailed  ErrorKind = "sync_failed"
	OfflineMode ErrorKind = "offline_mode"

	OperationFailed ErrorKind = "operation_failed"

	InitializationFailed ErrorKind = "initialization_failed"
)

// Category groups kinds by how they propagate.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryEntitlement  Category = "entitlement"
	CategoryCollaborator Category = "collaborator"
	CategorySync         Category = "sync"
	CategoryExhausted    Category = "exhausted"
	CategoryCritical     Category = "critical"
)

// Category returns the group of k.
func (k ErrorKind) Category() Category {
	switch k {
	case InvalidParameter, ProgramNotAvailable, AlreadyEnrolled, TooManyActivePrograms, SessionNotActive:
		return CategoryValidation
	case PremiumRequired:
		return CategoryEntitlement
	case SyncFailed, OfflineMode:
		return CategorySync
	case OperationFailed:
		return CategoryExhausted
	case InitializationFailed:
		return CategoryCritical
	default:
		return CategoryCollaborator
	}
}

// Error is returned by every orchestrator operation.
type Error struct {
	Kind ErrorKind
	// Op is the orchestrator operation that failed, e.g. "enroll".
	Op        string
	ProgramID string
	SessionID string
	// OperationID is set when the failed work was queued for retry.
	OperationID string
	Message     string
	Cause       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.OperationID != "" {
		b.WriteString(" (operation ")
		b.WriteString(e.OperationID)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Queued reports whether the failed work was handed to the retry queue.
func (e *Error) Queued() bool { return e.OperationID != "" }

// Retryable reports whether repeating the call later can succeed.
func (e *Error) Retryable() bool {
	switch e.Kind.Category() {
	case CategoryCollaborator, CategorySync:
		return e.Kind != ProgressDataNotFound
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidParameter       = &Error{Kind: InvalidParameter}
	ErrProgramNotAvailable    = &Error{Kind: ProgramNotAvailable}
	ErrAlreadyEnrolled        = &Error{Kind: AlreadyEnrolled}
	ErrTooManyActivePrograms  = &Error{Kind: TooManyActivePrograms}
	ErrSessionNotActive       = &Error{Kind: SessionNotActive}
	ErrPremiumRequired        = &Error{Kind: PremiumRequired}
	ErrEnrollmentFailed       = &Error{Kind: EnrollmentFailed}
	ErrWorkoutRecordFailed    = &Error{Kind: WorkoutRecordFailed}
	ErrRecommendationsFailed  = &Error{Kind: RecommendationsFailed}
	ErrProgressDataFailed     = &Error{Kind: ProgressDataFailed}
	ErrProgressDataNotFound   = &Error{Kind: ProgressDataNotFound}
	ErrHealthBridgeSyncFailed = &Error{Kind: HealthBridgeSyncFailed}
	ErrSyncFailed             = &Error{Kind: SyncFailed}
	ErrOfflineMode            = &Error{Kind: OfflineMode}
	ErrOperationFailed        = &Error{Kind: OperationFailed}
	ErrInitializationFailed   = &Error{Kind: InitializationFailed}
)

// errOffline is the cause attached to work deferred while offline.
var errOffline = errors.Join(errors.New("offline mode"), domain.ErrNetworkUnavailable)

// IsNetworkError reports whether err was caused by lost connectivity.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNetworkUnavailable) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
