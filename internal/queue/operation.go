// SPDX-License-Identifier: MIT

// Package queue holds failed side-effecting operations and retries them with
// bounded exponential backoff.
package queue

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Kind selects the retry handler of an operation.
type Kind string

const (
	KindEnrollment       Kind = "enrollment"
	KindWorkoutRecord    Kind = "workout_record"
	KindProgressSync     Kind = "progress_sync"
	KindHealthBridgeSync Kind = "health_bridge_sync"
)

// Kinds lists every operation kind.
func Kinds() []Kind {
	return []Kind{KindEnrollment, KindWorkoutRecord, KindProgressSync, KindHealthBridgeSync}
}

// Payload is the opaque argument set a handler needs to replay an operation.
type Payload map[string]any

// String returns the string at key, or "".
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns the number at key, or 0.
func (p Payload) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// PendingOperation is a failed operation awaiting retry. RetryCount only
// grows and is only changed by the queue.
type PendingOperation struct {
	ID            uuid.UUID `json:"id"`
	Kind          Kind      `json:"kind"`
	Payload       Payload   `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// Clone returns a copy that does not share the payload map.
func (op PendingOperation) Clone() PendingOperation {
	op.Payload = maps.Clone(op.Payload)
	return op
}
