// SPDX-License-Identifier: MIT

package sandbox

import "github.com/ManuGH/clubsync/internal/domain"

// Backend bundles one fake of every collaborator.
type Backend struct {
	Catalog      *Catalog
	Challenges   *Challenges
	Plan         *PlanEngine
	Bridge       *HealthBridge
	Entitlements *Entitlements
	Auth         *AuthSession
	Network      *Network
}

// NewBackend returns a reachable, unauthenticated backend seeded with programs.
func NewBackend(programs ...domain.Program) *Backend {
	return &Backend{
		Catalog:      NewCatalog(programs...),
		Challenges:   &Challenges{},
		Plan:         NewPlanEngine(),
		Bridge:       NewHealthBridge(true),
		Entitlements: &Entitlements{},
		Auth:         &AuthSession{},
		Network:      &Network{},
	}
}

// SetNetwork simulates losing or regaining connectivity for every remote collaborator.
func (b *Backend) SetNetwork(up bool) {
	var err error
	if !up {
		err = domain.ErrNetworkUnavailable
	}
	b.Network.SetReachable(up)
	for _, f := range []*Faults{&b.Catalog.Faults, &b.Challenges.Faults, &b.Plan.Faults, &b.Bridge.Faults, &b.Auth.Faults} {
		f.FailAll(err)
	}
}

// DemoPrograms is the catalog the memory backend serves.
func DemoPrograms() []domain.Program {
	return []domain.Program{
		{ID: "couch-to-5k", Name: "Couch to 5K", DurationWeeks: 9, Tags: []string{"running"}},
		{ID: "strength-basics", Name: "Strength Basics", DurationWeeks: 8, Tags: []string{"strength"}},
		{ID: "hypertrophy-pro", Name: "Hypertrophy Pro", Premium: true, DurationWeeks: 12, Tags: []string{"strength"}},
		{ID: "marathon-build", Name: "Marathon Build", Premium: true, Featured: true, DurationWeeks: 16, Tags: []string{"running"}},
		{ID: "mobility-daily", Name: "Mobility Daily", DurationWeeks: 4, Tags: []string{"mobility"}},
	}
}

// DemoChallenges links club challenges to demo programs.
func DemoChallenges() []domain.ChallengeEnrollment {
	return []domain.ChallengeEnrollment{
		{ChallengeID: "spring-5k", Name: "Spring 5K", ProgramID: "couch-to-5k", Progress: 0.35, Rank: 12},
		{ChallengeID: "mobility-month", Name: "Mobility Month", ProgramID: "mobility-daily", Progress: 0.8, Rank: 3},
	}
}

// NewDemoBackend returns a backend with demo data and an established session.
func NewDemoBackend() *Backend {
	b := NewBackend(DemoPrograms()...)
	b.Challenges.SetActive(DemoChallenges()...)
	b.Auth.SetAuthenticated(true)
	return b
}
