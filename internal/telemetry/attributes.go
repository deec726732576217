// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by orchestrator spans.
const (
	ProgramIDKey   = "clubsync.program_id"
	SessionIDKey   = "clubsync.session_id"
	WorkoutIDKey   = "clubsync.workout_id"
	OperationIDKey = "clubsync.operation_id"
	OperationKind  = "clubsync.operation_kind"
	ServiceKey     = "clubsync.service"
	OfflineKey     = "clubsync.offline"
	QueuedKey      = "clubsync.queued"

	DrainAttemptedKey = "queue.attempted"
	DrainSucceededKey = "queue.succeeded"
	DrainFailedKey    = "queue.failed"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// EnrollAttributes describes an enrollment attempt.
func EnrollAttributes(programID string, startingWeight float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProgramIDKey, programID),
		attribute.Float64("clubsync.starting_weight", startingWeight),
	}
}

// WorkoutAttributes describes a workout recording; empty IDs are omitted.
func WorkoutAttributes(workoutID, sessionID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if workoutID != "" {
		attrs = append(attrs, attribute.String(WorkoutIDKey, workoutID))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	return attrs
}

// QueuedAttributes marks a span whose work was handed to the retry queue.
func QueuedAttributes(operationID, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(QueuedKey, true),
		attribute.String(OperationIDKey, operationID),
		attribute.String(OperationKind, kind),
	}
}

// DrainAttributes summarizes a queue drain.
func DrainAttributes(attempted, succeeded, failed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(DrainAttemptedKey, attempted),
		attribute.Int(DrainSucceededKey, succeeded),
		attribute.Int(DrainFailedKey, failed),
	}
}

// ErrorAttributes marks a span as failed with a classified error type.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
