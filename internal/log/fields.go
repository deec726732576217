// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService       = "service"
	FieldVersion       = "version"
	FieldComponent     = "component"
	FieldEvent         = "event"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldOperationID   = "operation_id"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"

	// Domain fields
	FieldProgramID = "program_id"
	FieldSessionID = "session_id"
	FieldWorkoutID = "workout_id"
	FieldKind      = "kind"
	FieldTarget    = "target_service"

	// State fields
	FieldOldState   = "old_state"
	FieldNewState   = "new_state"
	FieldRetryCount = "retry_count"
	FieldReason     = "reason"
)
