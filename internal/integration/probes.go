// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"

	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/resilience"
)

var errNoSession = errors.New("no user session")

const (
	reasonNotAuthorized = "not authorized by the user"
	reasonGenerating    = "workflow generation in progress"
)

// probes derives one probe per collaborator.
func (o *Orchestrator) probes() []health.Probe {
	catalog := o.pingProbe(health.ServiceCatalog, o.collab.Catalog)
	challenges := o.pingProbe(health.ServiceChallenges, o.collab.Challenges)
	plan := o.pingProbe(health.ServicePlanEngine, o.collab.Plan)

	return []health.Probe{
		catalog,
		challenges,
		health.ProbeFunc{ID: health.ServicePlanEngine, Fn: func(ctx context.Context) health.ServiceHealth {
			h := plan.Check(ctx)
			if h.IsHealthy() && o.collab.Plan.IsGenerating() {
				return health.Degraded(reasonGenerating)
			}
			return h
		}},
		health.ProbeFunc{ID: health.ServiceHealthBridge, Fn: func(ctx context.Context) health.ServiceHealth {
			if !o.collab.Bridge.IsAuthorized() {
				return health.Degraded(reasonNotAuthorized)
			}
			return o.breakerHealth(health.ServiceHealthBridge)
		}},
		health.ProbeFunc{ID: health.ServiceEntitlements, Fn: func(context.Context) health.ServiceHealth {
			return health.Healthy()
		}},
		health.ProbeFunc{ID: health.ServiceAuth, Fn: func(context.Context) health.ServiceHealth {
			if o.collab.Auth.IsAuthenticated() {
				return health.Healthy()
			}
			return health.Failed(errNoSession)
		}},
		o.networkProbe(),
	}
}

// pingProbe pings the collaborator through its breaker when it can be
// pinged and reports the breaker state otherwise.
func (o *Orchestrator) pingProbe(id health.ServiceIdentity, collaborator any) health.Probe {
	pinger, ok := collaborator.(domain.Pinger)
	if !ok {
		return health.ProbeFunc{ID: id, Fn: func(context.Context) health.ServiceHealth { return o.breakerHealth(id) }}
	}
	return health.ProbeFunc{ID: id, Fn: func(ctx context.Context) health.ServiceHealth {
		if err := o.breakers[id].Execute(func() error { return pinger.Ping(ctx) }); err != nil {
			return health.Failed(err)
		}
		return health.Healthy()
	}}
}

func (o *Orchestrator) breakerHealth(id health.ServiceIdentity) health.ServiceHealth {
	cb := o.breakers[id]
	switch cb.State() {
	case resilience.StateOpen:
		cause := cb.LastError()
		if cause == nil {
			cause = resilience.ErrCircuitOpen
		}
		return health.Failed(cause)
	case resilience.StateHalfOpen:
		return health.Degraded("recovering after failures")
	default:
		return health.Healthy()
	}
}

// networkProbe checks reachability when configured; otherwise it reports the mode.
func (o *Orchestrator) networkProbe() health.Probe {
	if o.collab.Reachability != nil {
		return health.NetworkProbe(o.collab.Reachability)
	}
	return health.ProbeFunc{ID: health.ServiceNetwork, Fn: func(context.Context) health.ServiceHealth {
		if o.mode.Offline() {
			return health.Failed(errOffline)
		}
		return health.Healthy()
	}}
}
