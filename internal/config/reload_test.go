// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path string, maxRetries int) {
	t.Helper()
	cfg := Default()
	cfg.DataDir = filepath.Dir(path)
	cfg.Sync.MaxRetries = maxRetries
	require.NoError(t, WriteFile(path, cfg, true))
}

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clubsync.yaml")
	writeConfig(t, path, 3)

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	writeConfig(t, path, 8)
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, 8, h.Get().Sync.MaxRetries)
	select {
	case got := <-ch:
		assert.Equal(t, 8, got.Sync.MaxRetries)
	default:
		t.Fatal("listener not notified")
	}
}

func TestHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clubsync.yaml")
	writeConfig(t, path, 3)

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	require.NoError(t, os.WriteFile(path, []byte("sync:\n  maxRetries: 0\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 3, h.Get().Sync.MaxRetries)
}

func TestHolder_FullListenerDoesNotBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clubsync.yaml")
	writeConfig(t, path, 3)
	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan AppConfig) // unbuffered, never read
	h.RegisterListener(ch)
	assert.NoError(t, h.Reload(context.Background()))
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clubsync.yaml")
	writeConfig(t, path, 3)
	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	h.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	cfg := Default()
	cfg.DataDir = filepath.Dir(path)
	cfg.Sync.MaxRetries = 6
	data, err := Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	assert.Eventually(t, func() bool { return h.Get().Sync.MaxRetries == 6 }, 5*time.Second, 20*time.Millisecond)
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	h := NewHolder(Default(), NewLoader("", "test"))
	assert.NoError(t, h.StartWatcher(context.Background()))
}
