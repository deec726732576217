// SPDX-License-Identifier: MIT

// Package connectivity owns the online/offline mode flag.
package connectivity

import (
	"sync"
	"time"

	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/metrics"
	"github.com/rs/zerolog"
)

// Mode is the system-wide connectivity mode.
type Mode string

const (
	Online  Mode = "online"
	Offline Mode = "offline"
)

// Transition records one mode change.
type Transition struct {
	From   Mode      `json:"from"`
	To     Mode      `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Listener is called synchronously after every transition, outside the controller lock.
type Listener func(Transition)

// Controller decides the mode from explicit notifications and observed health.
// It only flips the flag and reports transitions; side effects belong to listeners.
type Controller struct {
	mu        sync.Mutex
	mode      Mode
	last      Transition
	listeners []Listener
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a controller in the given initial mode.
func New(initial Mode) *Controller {
	if initial != Offline {
		initial = Online
	}
	metrics.SetOfflineMode(initial == Offline)
	return &Controller{
		mode:   initial,
		now:    time.Now,
		logger: log.WithComponent("connectivity"),
	}
}

// OnTransition registers l for future transitions.
func (c *Controller) OnTransition(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Offline reports whether the system is offline.
func (c *Controller) Offline() bool { return c.Mode() == Offline }

// Paused lets the controller gate the retry queue.
func (c *Controller) Paused() bool { return c.Offline() }

// LastTransition returns the most recent transition, zero if none.
func (c *Controller) LastTransition() Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// SetConnectivity applies an explicit connectivity notification.
// It returns the transition and true when the mode changed.
func (c *Controller) SetConnectivity(online bool, reason string) (Transition, bool) {
	to := Offline
	if online {
		to = Online
	}
	return c.transition(to, reason)
}

// ForceOffline goes offline proactively, e.g. after a critical initialization failure.
func (c *Controller) ForceOffline(reason string) (Transition, bool) {
	return c.transition(Offline, reason)
}

// ObserveHealth evaluates a health pass. A healthy to error change on a
// critical service goes offline; while offline, a healthy network with a
// non-failing auth session goes back online.
func (c *Controller) ObserveHealth(prev, next health.Snapshot) (Transition, bool) {
	for _, id := range health.AllServices() {
		if !id.Critical() {
			continue
		}
		if prev.Get(id).IsHealthy() && next.Get(id).IsError() {
			return c.transition(Offline, string(id)+" became unavailable: "+next.Get(id).Cause)
		}
	}

	if c.Offline() && next.Get(health.ServiceNetwork).IsHealthy() && !next.Get(health.ServiceAuth).IsError() {
		return c.transition(Online, "network reachable again")
	}
	return Transition{}, false
}

func (c *Controller) transition(to Mode, reason string) (Transition, bool) {
	c.mu.Lock()
	if c.mode == to {
		c.mu.Unlock()
		return Transition{}, false
	}
	t := Transition{From: c.mode, To: to, Reason: reason, At: c.now()}
	c.mode = to
	c.last = t
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	metrics.SetOfflineMode(to == Offline)
	metrics.RecordModeTransition(string(to))
	c.logger.Info().
		Str(log.FieldEvent, "mode.transition").
		Str(log.FieldOldState, string(t.From)).
		Str(log.FieldNewState, string(t.To)).
		Str(log.FieldReason, reason).
		Msg("connectivity mode changed")

	for _, l := range listeners {
		l(t)
	}
	return t, true
}
