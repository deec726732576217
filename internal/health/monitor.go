// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Probe checks one collaborator.
type Probe interface {
	Service() ServiceIdentity
	Check(ctx context.Context) ServiceHealth
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc struct {
	ID ServiceIdentity
	Fn func(ctx context.Context) ServiceHealth
}

func (p ProbeFunc) Service() ServiceIdentity { return p.ID }

func (p ProbeFunc) Check(ctx context.Context) ServiceHealth { return p.Fn(ctx) }

// Monitor runs all registered probes concurrently and assembles a snapshot.
type Monitor struct {
	mu      sync.RWMutex
	probes  map[ServiceIdentity]Probe
	timeout time.Duration
}

// NewMonitor creates a monitor with the given per-probe timeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		probes:  make(map[ServiceIdentity]Probe),
		timeout: timeout,
	}
}

// SetTimeout changes the per-probe timeout for later passes. Non-positive values are ignored.
func (m *Monitor) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// Register adds or replaces the probe for its service.
func (m *Monitor) Register(p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[p.Service()] = p
}

// CheckAll fans out one probe per service and waits for all of them.
// Services without a probe are reported as unknown. The returned snapshot is
// complete; callers replace their mapping with it wholesale.
func (m *Monitor) CheckAll(ctx context.Context) Snapshot {
	m.mu.RLock()
	probes := make([]Probe, 0, len(m.probes))
	for _, p := range m.probes {
		probes = append(probes, p)
	}
	timeout := m.timeout
	m.mu.RUnlock()

	result := NewSnapshot()
	var resultMu sync.Mutex

	// Probes never return errors; the group is used for fan-out/fan-in only so
	// one failing service cannot cancel the others.
	var g errgroup.Group
	for _, p := range probes {
		g.Go(func() error {
			h := runProbe(ctx, p, timeout)
			resultMu.Lock()
			result[p.Service()] = h
			resultMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

func runProbe(ctx context.Context, p Probe, timeout time.Duration) (h ServiceHealth) {
	id := p.Service()
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger := log.WithComponent("health")
			logger.Error().
				Str(log.FieldTarget, string(id)).
				Interface("panic", r).
				Msg("health probe panicked")
			h = Failed(fmt.Errorf("probe panic: %v", r))
		}
		if h.CheckedAt.IsZero() {
			h.CheckedAt = time.Now()
		}
		metrics.ObserveHealthProbe(string(id), time.Since(start))
		metrics.SetServiceHealth(string(id), string(h.State))
	}()

	h = p.Check(probeCtx)
	if h.State == "" {
		h.State = StateUnknown
	}
	if probeCtx.Err() != nil && !h.IsError() {
		h = Failed(fmt.Errorf("probe timed out after %s: %w", timeout, probeCtx.Err()))
	}
	return h
}
