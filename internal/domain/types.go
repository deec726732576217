// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package domain holds the training data types exchanged with collaborators
// and the collaborator contracts the orchestrator consumes.
package domain

import "time"

// Program is a training program offered by the catalog.
type Program struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Premium       bool     `json:"premium"`
	Featured      bool     `json:"featured"`
	DurationWeeks int      `json:"duration_weeks"`
	Tags          []string `json:"tags,omitempty"`
}

// StartingParameters are the user-supplied inputs a workflow is generated from.
type StartingParameters struct {
	// StartingWeight is the working weight in kilograms.
	StartingWeight float64 `json:"starting_weight"`
}

// Session is an enrollment of the user in a program.
type Session struct {
	ID        string             `json:"id"`
	ProgramID string             `json:"program_id"`
	Params    StartingParameters `json:"params"`
	StartedAt time.Time          `json:"started_at"`
	Active    bool               `json:"active"`
}

// PlannedWorkout is one entry of a generated workflow.
type PlannedWorkout struct {
	Day            int           `json:"day"`
	Name           string        `json:"name"`
	TargetDuration time.Duration `json:"target_duration"`
	TargetWeight   float64       `json:"target_weight"`
}

// Workflow is the plan engine's schedule for a session.
type Workflow struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Revision    int              `json:"revision"`
	Workouts    []PlannedWorkout `json:"workouts"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Workout is a completed training unit recorded by the user.
type Workout struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	TargetDuration time.Duration `json:"target_duration"`
	ActualDuration time.Duration `json:"actual_duration"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// DurationDeviation returns |actual-target|/target, or 0 when no target is set.
func (w Workout) DurationDeviation() float64 {
	if w.TargetDuration <= 0 {
		return 0
	}
	diff := w.ActualDuration - w.TargetDuration
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(w.TargetDuration)
}

// Analytics is the plan-level progress summary for a session.
type Analytics struct {
	SessionID         string    `json:"session_id"`
	ProgramID         string    `json:"program_id"`
	CompletedWorkouts int       `json:"completed_workouts"`
	PlannedWorkouts   int       `json:"planned_workouts"`
	AdherenceRate     float64   `json:"adherence_rate"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ActivitySummary is what the wearable-health bridge reports for a session.
type ActivitySummary struct {
	ActiveMinutes  int     `json:"active_minutes"`
	ActiveCalories float64 `json:"active_calories"`
	AvgHeartRate   int     `json:"avg_heart_rate"`
}

// ChallengeEnrollment is a club challenge the user participates in.
type ChallengeEnrollment struct {
	ChallengeID string  `json:"challenge_id"`
	Name        string  `json:"name"`
	ProgramID   string  `json:"program_id,omitempty"`
	Progress    float64 `json:"progress"`
	Rank        int     `json:"rank,omitempty"`
}
