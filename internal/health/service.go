// SPDX-License-Identifier: MIT

// Package health tracks the operability of every external collaborator the
// orchestrator depends on, one independent status per service.
package health

import (
	"errors"
	"time"
)

// ServiceIdentity names one external collaborator.
type ServiceIdentity string

const (
	ServiceCatalog      ServiceIdentity = "program_catalog"
	ServiceChallenges   ServiceIdentity = "challenge_service"
	ServicePlanEngine   ServiceIdentity = "plan_engine"
	ServiceHealthBridge ServiceIdentity = "health_bridge"
	ServiceEntitlements ServiceIdentity = "entitlement_service"
	ServiceAuth         ServiceIdentity = "auth_session"
	ServiceNetwork      ServiceIdentity = "network"
)

// AllServices returns every known service in a stable order.
func AllServices() []ServiceIdentity {
	return []ServiceIdentity{
		ServiceCatalog,
		ServiceChallenges,
		ServicePlanEngine,
		ServiceHealthBridge,
		ServiceEntitlements,
		ServiceAuth,
		ServiceNetwork,
	}
}

// Critical reports whether losing the service makes every core operation unsafe.
// Only these services can drive an offline transition.
func (s ServiceIdentity) Critical() bool {
	return s == ServiceAuth || s == ServiceNetwork
}

// State is the health classification of a service.
type State string

const (
	StateUnknown  State = "unknown"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateError    State = "error"
)

// ServiceHealth is the outcome of one probe. Reason is set for degraded,
// Cause for error.
type ServiceHealth struct {
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Cause     string    `json:"cause,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func Unknown() ServiceHealth {
	return ServiceHealth{State: StateUnknown}
}

func Healthy() ServiceHealth {
	return ServiceHealth{State: StateHealthy, CheckedAt: time.Now()}
}

func Degraded(reason string) ServiceHealth {
	return ServiceHealth{State: StateDegraded, Reason: reason, CheckedAt: time.Now()}
}

func Failed(cause error) ServiceHealth {
	if cause == nil {
		cause = errors.New("unspecified failure")
	}
	return ServiceHealth{State: StateError, Cause: cause.Error(), CheckedAt: time.Now()}
}

// IsHealthy is true only for StateHealthy.
func (h ServiceHealth) IsHealthy() bool { return h.State == StateHealthy }

// IsError is true only for StateError.
func (h ServiceHealth) IsError() bool { return h.State == StateError }

// Same compares classification and detail, ignoring the check time.
func (h ServiceHealth) Same(other ServiceHealth) bool {
	return h.State == other.State && h.Reason == other.Reason && h.Cause == other.Cause
}

// Snapshot is the health mapping for all services.
type Snapshot map[ServiceIdentity]ServiceHealth

// NewSnapshot returns a snapshot with every service set to unknown.
func NewSnapshot() Snapshot {
	s := make(Snapshot, len(AllServices()))
	for _, id := range AllServices() {
		s[id] = Unknown()
	}
	return s
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the health for id, or unknown when absent.
func (s Snapshot) Get(id ServiceIdentity) ServiceHealth {
	if h, ok := s[id]; ok {
		return h
	}
	return Unknown()
}

// Change describes a service whose health differs between two snapshots.
type Change struct {
	Service  ServiceIdentity `json:"service"`
	Previous ServiceHealth   `json:"previous"`
	Current  ServiceHealth   `json:"current"`
}

// Diff lists services whose health changed from prev to next, in AllServices order.
func Diff(prev, next Snapshot) []Change {
	var changes []Change
	for _, id := range AllServices() {
		p, n := prev.Get(id), next.Get(id)
		if !p.Same(n) {
			changes = append(changes, Change{Service: id, Previous: p, Current: n})
		}
	}
	return changes
}

// Overall folds a snapshot into one status: error if any critical service
// errors, degraded if anything is not healthy, healthy otherwise.
func (s Snapshot) Overall() State {
	overall := StateHealthy
	for _, id := range AllServices() {
		h := s.Get(id)
		switch {
		case h.IsError() && id.Critical():
			return StateError
		case !h.IsHealthy():
			overall = StateDegraded
		}
	}
	return overall
}
