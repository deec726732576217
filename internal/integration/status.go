// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"time"

	"github.com/ManuGH/clubsync/internal/connectivity"
	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/queue"
)

// StatusState is the lifecycle of the orchestrator.
type StatusState string

const (
	StatusInitializing StatusState = "initializing"
	StatusReady        StatusState = "ready"
	StatusFailed       StatusState = "failed"
)

// IntegrationStatus is the orchestrator lifecycle state. Cause is set when failed.
type IntegrationStatus struct {
	State StatusState `json:"state"`
	Cause string      `json:"cause,omitempty"`
	Since time.Time   `json:"since"`
}

// SyncState is the state of the full-sync machinery.
type SyncState string

const (
	SyncStateIdle      SyncState = "idle"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateCompleted SyncState = "completed"
	SyncStateFailed    SyncState = "failed"
	SyncStateOffline   SyncState = "offline"
)

type SyncStatus struct {
	State           SyncState `json:"state"`
	Cause           string    `json:"cause,omitempty"`
	Since           time.Time `json:"since"`
	LastCompletedAt time.Time `json:"last_completed_at,omitzero"`
}

// ErrorRecord is an entry of the user-visible error lists.
type ErrorRecord struct {
	Kind        ErrorKind `json:"kind"`
	Category    Category  `json:"category"`
	Message     string    `json:"message"`
	OperationID string    `json:"operation_id,omitempty"`
	At          time.Time `json:"at"`
}

// FailedOperation is a queued operation that exhausted its retries.
type FailedOperation struct {
	Operation queue.PendingOperation `json:"operation"`
	Cause     string                 `json:"cause"`
	FailedAt  time.Time              `json:"failed_at"`
}

// UnifiedProgramResult aggregates an enrollment across collaborators.
type UnifiedProgramResult struct {
	Program            domain.Program  `json:"program"`
	Session            domain.Session  `json:"session"`
	Workflow           domain.Workflow `json:"workflow"`
	HealthBridgeSynced bool            `json:"health_bridge_synced"`
	PremiumUnlocked    bool            `json:"premium_unlocked"`
}

// WorkoutRecordResult reports what happened around a recorded workout.
type WorkoutRecordResult struct {
	Workout            domain.Workout `json:"workout"`
	SessionID          string         `json:"session_id"`
	HealthBridgeSynced bool           `json:"health_bridge_synced"`
	// AdaptationTriggered is set when the deviation asked for a new workflow.
	AdaptationTriggered bool `json:"adaptation_triggered"`
	// Workflow is the regenerated workflow, nil when not regenerated yet.
	Workflow *domain.Workflow `json:"workflow,omitempty"`
	// AdaptationOperationID is set when the regeneration was queued for retry.
	AdaptationOperationID string `json:"adaptation_operation_id,omitempty"`
}

// UnifiedProgressData merges plan analytics with optional enrichments.
type UnifiedProgressData struct {
	SessionID  string                       `json:"session_id"`
	Analytics  domain.Analytics             `json:"analytics"`
	Activity   *domain.ActivitySummary      `json:"activity,omitempty"`
	Challenges []domain.ChallengeEnrollment `json:"challenges,omitempty"`
	// Unavailable lists enrichment sources that could not be read.
	Unavailable []health.ServiceIdentity `json:"unavailable,omitempty"`
}

// Snapshot is a consistent read of all observable state.
type Snapshot struct {
	Status            IntegrationStatus        `json:"status"`
	Sync              SyncStatus               `json:"sync"`
	Mode              connectivity.Mode        `json:"mode"`
	Offline           bool                     `json:"offline"`
	PendingOperations []queue.PendingOperation `json:"pending_operations"`
	ServiceHealth     health.Snapshot          `json:"service_health"`
	OverallHealth     health.State             `json:"overall_health"`
	CurrentErrors     []ErrorRecord            `json:"current_errors"`
	CriticalErrors    []ErrorRecord            `json:"critical_errors"`
	FailedOperations  []FailedOperation        `json:"failed_operations"`
}
