// SPDX-License-Identifier: MIT

package sandbox

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/google/uuid"
)

// Challenges is an in-memory challenge service.
type Challenges struct {
	Faults

	mu     sync.Mutex
	active []domain.ChallengeEnrollment
}

// SetActive replaces the active challenge enrollments.
func (c *Challenges) SetActive(list ...domain.ChallengeEnrollment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = slices.Clone(list)
}

func (c *Challenges) Ping(context.Context) error { return c.enter("Ping") }

func (c *Challenges) Refresh(context.Context) error {
	if err := c.enter("Refresh"); err != nil {
		return err
	}
	return c.exit("Refresh")
}

func (c *Challenges) ActiveEnrollments(context.Context) ([]domain.ChallengeEnrollment, error) {
	if err := c.enter("ActiveEnrollments"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.active), nil
}

// PlanEngine generates fixed four-week workflows and counts regenerations.
type PlanEngine struct {
	Faults

	mu         sync.Mutex
	workflows  map[string]domain.Workflow
	lastReason string
	generating atomic.Bool
}

func NewPlanEngine() *PlanEngine {
	return &PlanEngine{workflows: make(map[string]domain.Workflow)}
}

// SetGenerating toggles the in-progress flag reported by IsGenerating.
func (p *PlanEngine) SetGenerating(v bool) { p.generating.Store(v) }

// Workflow returns the current workflow of a session.
func (p *PlanEngine) Workflow(sessionID string) (domain.Workflow, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wf, ok := p.workflows[sessionID]
	return wf, ok
}

// LastReason returns the reason passed to the latest regeneration.
func (p *PlanEngine) LastReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReason
}

func (p *PlanEngine) Ping(context.Context) error { return p.enter("Ping") }

func (p *PlanEngine) IsGenerating() bool { return p.generating.Load() }

func (p *PlanEngine) GenerateWorkflow(_ context.Context, session domain.Session) (domain.Workflow, error) {
	if err := p.enter("GenerateWorkflow"); err != nil {
		return domain.Workflow{}, err
	}
	wf := domain.Workflow{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		Revision:    1,
		Workouts:    plannedWeeks(4, session.Params.StartingWeight),
		GeneratedAt: time.Now(),
	}
	p.mu.Lock()
	p.workflows[session.ID] = wf
	p.mu.Unlock()
	return wf, p.exit("GenerateWorkflow")
}

func (p *PlanEngine) RegenerateWorkflow(_ context.Context, sessionID, reason string) (domain.Workflow, error) {
	if err := p.enter("RegenerateWorkflow"); err != nil {
		return domain.Workflow{}, err
	}
	p.mu.Lock()
	wf, ok := p.workflows[sessionID]
	if !ok {
		p.mu.Unlock()
		return domain.Workflow{}, fmt.Errorf("workflow for session %q: %w", sessionID, domain.ErrNotFound)
	}
	wf.Revision++
	wf.GeneratedAt = time.Now()
	p.workflows[sessionID] = wf
	p.lastReason = reason
	p.mu.Unlock()
	return wf, p.exit("RegenerateWorkflow")
}

func plannedWeeks(weeks int, startingWeight float64) []domain.PlannedWorkout {
	out := make([]domain.PlannedWorkout, 0, weeks*3)
	for day := 1; day <= weeks*7; day += 2 {
		if len(out) == weeks*3 {
			break
		}
		out = append(out, domain.PlannedWorkout{
			Day:            day,
			Name:           fmt.Sprintf("Session %d", len(out)+1),
			TargetDuration: 45 * time.Minute,
			TargetWeight:   startingWeight * (1 + 0.025*float64(len(out)/3)),
		})
	}
	return out
}

// HealthBridge is an in-memory wearable-health store.
type HealthBridge struct {
	Faults

	authorized atomic.Bool
	mu         sync.Mutex
	sessions   map[string]domain.Session
	workouts   map[string]domain.Workout
	summaries  map[string]*domain.ActivitySummary
}

func NewHealthBridge(authorized bool) *HealthBridge {
	b := &HealthBridge{
		sessions:  make(map[string]domain.Session),
		workouts:  make(map[string]domain.Workout),
		summaries: make(map[string]*domain.ActivitySummary),
	}
	b.authorized.Store(authorized)
	return b
}

func (b *HealthBridge) SetAuthorized(v bool) { b.authorized.Store(v) }

// SetSummary sets the activity summary for a session.
func (b *HealthBridge) SetSummary(sessionID string, s domain.ActivitySummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaries[sessionID] = &s
}

// Mirrored reports whether the workout has been mirrored.
func (b *HealthBridge) Mirrored(workoutID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.workouts[workoutID]
	return ok
}

func (b *HealthBridge) IsAuthorized() bool { return b.authorized.Load() }

func (b *HealthBridge) MirrorEnrollment(_ context.Context, session domain.Session) error {
	if err := b.enter("MirrorEnrollment"); err != nil {
		return err
	}
	if !b.IsAuthorized() {
		return domain.ErrNotAuthorized
	}
	b.mu.Lock()
	b.sessions[session.ID] = session
	b.mu.Unlock()
	return b.exit("MirrorEnrollment")
}

func (b *HealthBridge) MirrorWorkout(_ context.Context, workout domain.Workout) error {
	if err := b.enter("MirrorWorkout"); err != nil {
		return err
	}
	if !b.IsAuthorized() {
		return domain.ErrNotAuthorized
	}
	b.mu.Lock()
	b.workouts[workout.ID] = workout
	b.mu.Unlock()
	return b.exit("MirrorWorkout")
}

func (b *HealthBridge) ActivitySummary(_ context.Context, sessionID string) (*domain.ActivitySummary, error) {
	if err := b.enter("ActivitySummary"); err != nil {
		return nil, err
	}
	if !b.IsAuthorized() {
		return nil, domain.ErrNotAuthorized
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.summaries[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// Entitlements is a switchable subscription flag.
type Entitlements struct {
	entitled atomic.Bool
}

func (e *Entitlements) SetEntitled(v bool) { e.entitled.Store(v) }
func (e *Entitlements) IsEntitled() bool   { return e.entitled.Load() }

// AuthSession tracks whether a session exists.
type AuthSession struct {
	Faults
	authenticated atomic.Bool
}

func (a *AuthSession) SetAuthenticated(v bool) { a.authenticated.Store(v) }
func (a *AuthSession) IsAuthenticated() bool   { return a.authenticated.Load() }

func (a *AuthSession) EstablishAnonymousSession(context.Context) error {
	if err := a.enter("EstablishAnonymousSession"); err != nil {
		return err
	}
	a.authenticated.Store(true)
	return nil
}

// Network is a switchable reachability check.
type Network struct {
	down atomic.Bool
}

func (n *Network) SetReachable(v bool) { n.down.Store(!v) }

func (n *Network) Reachable(context.Context) error {
	if n.down.Load() {
		return domain.ErrNetworkUnavailable
	}
	return nil
}
