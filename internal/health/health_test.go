// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/clubsync/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedProbe(id ServiceIdentity, h ServiceHealth, delay time.Duration) Probe {
	return ProbeFunc{ID: id, Fn: func(ctx context.Context) ServiceHealth {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		return h
	}}
}

func TestServiceIdentity_Critical(t *testing.T) {
	for _, id := range AllServices() {
		want := id == ServiceAuth || id == ServiceNetwork
		assert.Equal(t, want, id.Critical(), id)
	}
}

func TestMonitor_MissingProbeIsUnknown(t *testing.T) {
	m := NewMonitor(time.Second)
	m.Register(fixedProbe(ServiceCatalog, Healthy(), 0))

	snap := m.CheckAll(context.Background())
	require.Len(t, snap, len(AllServices()))
	assert.Equal(t, StateHealthy, snap[ServiceCatalog].State)
	assert.Equal(t, StateUnknown, snap[ServicePlanEngine].State)
}

func TestMonitor_IndependentFailures(t *testing.T) {
	m := NewMonitor(time.Second)
	m.Register(fixedProbe(ServiceCatalog, Healthy(), 0))
	m.Register(fixedProbe(ServiceHealthBridge, Degraded("not authorized"), 0))
	m.Register(fixedProbe(ServiceChallenges, Failed(errors.New("503")), 0))
	m.Register(ProbeFunc{ID: ServicePlanEngine, Fn: func(context.Context) ServiceHealth { panic("boom") }})

	snap := m.CheckAll(context.Background())
	assert.Equal(t, StateHealthy, snap[ServiceCatalog].State)
	assert.Equal(t, StateDegraded, snap[ServiceHealthBridge].State)
	assert.Equal(t, "not authorized", snap[ServiceHealthBridge].Reason)
	assert.Equal(t, StateError, snap[ServiceChallenges].State)
	assert.Equal(t, StateError, snap[ServicePlanEngine].State)
	assert.Contains(t, snap[ServicePlanEngine].Cause, "panic")
}

func TestMonitor_ProbeTimeoutIsError(t *testing.T) {
	m := NewMonitor(20 * time.Millisecond)
	m.Register(fixedProbe(ServiceCatalog, Healthy(), time.Second))

	start := time.Now()
	snap := m.CheckAll(context.Background())
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, StateError, snap[ServiceCatalog].State)
}

func TestMonitor_ProbesRunConcurrently(t *testing.T) {
	m := NewMonitor(time.Second)
	var running, peak atomic.Int32
	for _, id := range AllServices() {
		m.Register(ProbeFunc{ID: id, Fn: func(context.Context) ServiceHealth {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			running.Add(-1)
			return Healthy()
		}})
	}
	m.CheckAll(context.Background())
	assert.Greater(t, peak.Load(), int32(1))
}

// Completion order must not affect the resulting mapping.
func TestMonitor_ResultsAreCommutative(t *testing.T) {
	results := map[ServiceIdentity]ServiceHealth{
		ServiceCatalog:      Healthy(),
		ServiceChallenges:   Failed(errors.New("timeout")),
		ServicePlanEngine:   Degraded("generating"),
		ServiceHealthBridge: Degraded("not authorized"),
		ServiceEntitlements: Healthy(),
		ServiceAuth:         Healthy(),
		ServiceNetwork:      Failed(errors.New("unreachable")),
	}

	run := func(seed int64) Snapshot {
		rng := rand.New(rand.NewSource(seed))
		m := NewMonitor(time.Second)
		for id, h := range results {
			m.Register(fixedProbe(id, h, time.Duration(rng.Intn(20))*time.Millisecond))
		}
		return m.CheckAll(context.Background())
	}

	ignoreTime := cmpopts.IgnoreFields(ServiceHealth{}, "CheckedAt")
	first := run(1)
	for seed := int64(2); seed < 6; seed++ {
		if diff := cmp.Diff(first, run(seed), ignoreTime); diff != "" {
			t.Fatalf("snapshot depends on completion order (-first +run):\n%s", diff)
		}
	}
}

func TestDiff(t *testing.T) {
	prev := NewSnapshot()
	next := prev.Clone()
	next[ServiceNetwork] = Failed(errors.New("down"))

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, ServiceNetwork, changes[0].Service)
	assert.Equal(t, StateUnknown, changes[0].Previous.State)
	assert.Equal(t, StateError, changes[0].Current.State)

	assert.Empty(t, Diff(next, next.Clone()))
}

func TestSnapshot_Overall(t *testing.T) {
	s := NewSnapshot()
	for _, id := range AllServices() {
		s[id] = Healthy()
	}
	assert.Equal(t, StateHealthy, s.Overall())

	s[ServiceHealthBridge] = Degraded("not authorized")
	assert.Equal(t, StateDegraded, s.Overall())

	s[ServiceChallenges] = Failed(errors.New("x"))
	assert.Equal(t, StateDegraded, s.Overall())

	s[ServiceAuth] = Failed(errors.New("no session"))
	assert.Equal(t, StateError, s.Overall())
}

func TestNetworkProbe_HTTPReachability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NetworkProbe(NewHTTPReachability(srv.URL)).Check(context.Background())
	assert.Equal(t, StateHealthy, h.State)

	srv.Close()
	h = NetworkProbe(NewHTTPReachability(srv.URL)).Check(context.Background())
	assert.Equal(t, StateError, h.State)
}

func TestHTTPReachability_ServerErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, NewHTTPReachability(srv.URL).Reachable(context.Background()))
	assert.ErrorIs(t, NewHTTPReachability("").Reachable(context.Background()), errNoURL)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.DeadLetter.Path = filepath.Join(cfg.DataDir, "dl", "deadletter.db")

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, filepath.Join(cfg.DataDir, "dl"))
}
