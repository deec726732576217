// SPDX-License-Identifier: MIT
package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/clubsync/internal/config"
	"github.com/ManuGH/clubsync/internal/integration"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.API.ListenAddr = reserveListenAddr(t)
	return cfg
}

func TestSettings_DefaultsMatchOrchestratorDefaults(t *testing.T) {
	if diff := cmp.Diff(integration.DefaultSettings(), Settings(config.Default())); diff != "" {
		t.Errorf("settings mismatch (-orchestrator +config):\n%s", diff)
	}
}

func TestBootstrap_ServesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)

	rt, err := Bootstrap(context.Background(), cfg, "test-1.0.0")
	require.NoError(t, err)
	assert.Equal(t, integration.StatusReady, rt.Orchestrator.Status().State)
	require.NotNil(t, rt.DeadLetters)
	_, err = os.Stat(filepath.Join(cfg.DataDir, "deadletter.db"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Manager.Start(ctx) }()
	require.NoError(t, waitForListen(cfg.API.ListenAddr, 2*time.Second))

	for _, path := range []string{"/readyz", "/api/v1/deadletter"} {
		resp, err := http.Get("http://" + cfg.API.ListenAddr + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
	_, err = rt.DeadLetters.Count()
	assert.Error(t, err, "archive closed by shutdown hook")
}

func TestBootstrap_DeadLetterDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.DeadLetter.Enabled = false

	rt, err := Bootstrap(context.Background(), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Orchestrator.Close() })
	assert.Nil(t, rt.DeadLetters)
}

func TestBootstrap_UnsupportedBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = "postgres"

	_, err := Bootstrap(context.Background(), cfg, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedBackend))
}

func TestBootstrap_FailureShutsDownTelemetry(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	cfg := testConfig(t)
	cfg.Backend = "postgres"
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.ExporterType = "http"
	cfg.Telemetry.Endpoint = "127.0.0.1:1"

	_, err := Bootstrap(context.Background(), cfg, "test")
	require.ErrorIs(t, err, ErrUnsupportedBackend)

	_, span := otel.Tracer("bootstrap-test").Start(context.Background(), "after-failure")
	defer span.End()
	assert.False(t, span.IsRecording(), "tracer provider should be shut down")
}

type recordingApplier struct {
	applied chan integration.Settings
}

func (r *recordingApplier) ApplySettings(s integration.Settings) error {
	select {
	case r.applied <- s:
	default:
	}
	return nil
}

func TestApp_AppliesReloadedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := testConfig(t)
	require.NoError(t, config.WriteFile(path, cfg, true))

	loader := config.NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(initial, loader)

	applier := &recordingApplier{applied: make(chan integration.Settings, 1)}
	mgr, err := NewManager(DefaultServerConfig(cfg.API.ListenAddr), testDeps(&fakeRunner{}))
	require.NoError(t, err)
	app := NewApp(log.WithComponent("test"), mgr, holder, applier)
	app.reloadSignal = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.NoError(t, waitForListen(cfg.API.ListenAddr, 2*time.Second))

	cfg.Sync.MaxRetries = 9
	require.NoError(t, config.WriteFile(path, cfg, true))
	require.NoError(t, holder.Reload(context.Background()))

	select {
	case s := <-applier.applied:
		assert.Equal(t, 9, s.Retry.MaxRetries)
	case <-time.After(2 * time.Second):
		t.Fatal("reloaded settings were not applied")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestApp_RequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
