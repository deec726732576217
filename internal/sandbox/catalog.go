// SPDX-License-Identifier: MIT

package sandbox

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/google/uuid"
)

// Catalog is an in-memory program catalog. Enroll does not deduplicate,
// like a backend without a uniqueness constraint.
type Catalog struct {
	Faults

	mu        sync.Mutex
	programs  map[string]domain.Program
	order     []string
	sessions  map[string]domain.Session
	workouts  map[string][]domain.Workout
	analytics map[string]*domain.Analytics
}

// NewCatalog seeds the catalog with programs in recommendation order.
func NewCatalog(programs ...domain.Program) *Catalog {
	c := &Catalog{
		programs:  make(map[string]domain.Program),
		sessions:  make(map[string]domain.Session),
		workouts:  make(map[string][]domain.Workout),
		analytics: make(map[string]*domain.Analytics),
	}
	for _, p := range programs {
		c.AddProgram(p)
	}
	return c
}

// AddProgram adds or replaces a program.
func (c *Catalog) AddProgram(p domain.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.programs[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.programs[p.ID] = p
}

// SetAnalytics sets (or with nil clears) analytics for a session.
func (c *Catalog) SetAnalytics(sessionID string, a *domain.Analytics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a == nil {
		delete(c.analytics, sessionID)
		return
	}
	cp := *a
	c.analytics[sessionID] = &cp
}

// EnrollmentCount returns how many sessions exist for a program.
func (c *Catalog) EnrollmentCount(programID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sessions {
		if s.ProgramID == programID {
			n++
		}
	}
	return n
}

// EndSession marks a session inactive.
func (c *Catalog) EndSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[sessionID]; ok {
		s.Active = false
		c.sessions[sessionID] = s
	}
}

func (c *Catalog) Ping(context.Context) error {
	return c.enter("Ping")
}

func (c *Catalog) Refresh(context.Context) error {
	if err := c.enter("Refresh"); err != nil {
		return err
	}
	return c.exit("Refresh")
}

func (c *Catalog) Program(_ context.Context, programID string) (domain.Program, error) {
	if err := c.enter("Program"); err != nil {
		return domain.Program{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.programs[programID]
	if !ok {
		return domain.Program{}, fmt.Errorf("program %q: %w", programID, domain.ErrNotFound)
	}
	return p, nil
}

func (c *Catalog) Recommendations(context.Context) ([]domain.Program, error) {
	if err := c.enter("Recommendations"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Program, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.programs[id])
	}
	return out, nil
}

func (c *Catalog) Enrollments(context.Context) ([]domain.Session, error) {
	if err := c.enter("Enrollments"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.Session) int { return a.StartedAt.Compare(b.StartedAt) })
	return out, nil
}

func (c *Catalog) Enroll(_ context.Context, program domain.Program, params domain.StartingParameters) (domain.Session, error) {
	if err := c.enter("Enroll"); err != nil {
		return domain.Session{}, err
	}
	c.mu.Lock()
	if _, ok := c.programs[program.ID]; !ok {
		c.mu.Unlock()
		return domain.Session{}, fmt.Errorf("program %q: %w", program.ID, domain.ErrNotFound)
	}
	s := domain.Session{
		ID:        uuid.NewString(),
		ProgramID: program.ID,
		Params:    params,
		StartedAt: time.Now(),
		Active:    true,
	}
	c.sessions[s.ID] = s
	c.mu.Unlock()

	if err := c.exit("Enroll"); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (c *Catalog) RecordWorkout(_ context.Context, workout domain.Workout, sessionID string) error {
	if err := c.enter("RecordWorkout"); err != nil {
		return err
	}
	c.mu.Lock()
	if _, ok := c.sessions[sessionID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("session %q: %w", sessionID, domain.ErrNotFound)
	}
	list := c.workouts[sessionID]
	if !slices.ContainsFunc(list, func(w domain.Workout) bool { return w.ID == workout.ID }) {
		c.workouts[sessionID] = append(list, workout)
	}
	c.mu.Unlock()
	return c.exit("RecordWorkout")
}

func (c *Catalog) Workouts(_ context.Context, sessionID string) ([]domain.Workout, error) {
	if err := c.enter("Workouts"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.workouts[sessionID]), nil
}

func (c *Catalog) Analytics(_ context.Context, sessionID string) (*domain.Analytics, error) {
	if err := c.enter("Analytics"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.analytics[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}
