// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package domain

import (
	"context"
	"errors"
)

var (
	// ErrNetworkUnavailable marks a collaborator failure caused by lost connectivity.
	// Collaborators wrap it so the orchestrator can switch to offline mode.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized is returned by the health bridge when the user has not
	// granted access.
	ErrNotAuthorized = errors.New("not authorized")
)

// Catalog is the program catalog collaborator. It owns programs, enrollments,
// recorded workouts and plan analytics.
type Catalog interface {
	Refresh(ctx context.Context) error
	// Program returns ErrNotFound when the program is not in the catalog.
	Program(ctx context.Context, programID string) (Program, error)
	Recommendations(ctx context.Context) ([]Program, error)
	Enrollments(ctx context.Context) ([]Session, error)
	Enroll(ctx context.Context, program Program, params StartingParameters) (Session, error)
	// RecordWorkout must be idempotent on Workout.ID.
	RecordWorkout(ctx context.Context, workout Workout, sessionID string) error
	Workouts(ctx context.Context, sessionID string) ([]Workout, error)
	// Analytics returns nil when the session has no analytics yet.
	Analytics(ctx context.Context, sessionID string) (*Analytics, error)
}

// Challenges is the club challenge collaborator.
type Challenges interface {
	Refresh(ctx context.Context) error
	ActiveEnrollments(ctx context.Context) ([]ChallengeEnrollment, error)
}

// PlanEngine generates and adapts workflows.
type PlanEngine interface {
	GenerateWorkflow(ctx context.Context, session Session) (Workflow, error)
	RegenerateWorkflow(ctx context.Context, sessionID, reason string) (Workflow, error)
	IsGenerating() bool
}

// HealthBridge mirrors training data to the wearable-health store.
type HealthBridge interface {
	IsAuthorized() bool
	MirrorEnrollment(ctx context.Context, session Session) error
	// MirrorWorkout must be idempotent on Workout.ID.
	MirrorWorkout(ctx context.Context, workout Workout) error
	// ActivitySummary returns nil when the bridge has no data for the session.
	ActivitySummary(ctx context.Context, sessionID string) (*ActivitySummary, error)
}

// Entitlements reports the subscription tier.
type Entitlements interface {
	IsEntitled() bool
}

// AuthSession provides the user session every backend call depends on.
type AuthSession interface {
	IsAuthenticated() bool
	EstablishAnonymousSession(ctx context.Context) error
}

// Pinger is implemented by collaborators that expose a cheap liveness call.
type Pinger interface {
	Ping(ctx context.Context) error
}
