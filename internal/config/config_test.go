// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLUBSYNC_DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Sync.CallTimeout)
	assert.Equal(t, 3, cfg.Enrollment.MaxActivePrograms)
	assert.InDelta(t, 0.20, cfg.Adaptation.DeviationThreshold, 1e-9)
	assert.Equal(t, filepath.Join(cfg.DataDir, "deadletter.db"), cfg.DeadLetter.Path)
}

func TestLoad_ValidMinimal(t *testing.T) {
	t.Setenv("CLUBSYNC_DATA_DIR", t.TempDir())

	cfg, err := NewLoader(filepath.Join("testdata", "valid-minimal.yaml"), "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 2, cfg.Enrollment.MaxActivePrograms)
	// untouched keys keep defaults
	assert.Equal(t, 2*time.Second, cfg.Sync.BackoffBase)
	assert.InDelta(t, 500, cfg.Enrollment.MaxStartingWeight, 1e-9)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	_, err := NewLoader(filepath.Join("testdata", "invalid-unknown-key.yaml"), "test").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
	assert.Contains(t, err.Error(), "unexpectedRootKey")
}

func TestLoad_InvalidTypeFails(t *testing.T) {
	_, err := NewLoader(filepath.Join("testdata", "invalid-type.yaml"), "test").Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	_, err := NewLoader("config.json", "test").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestENVOverridesFile(t *testing.T) {
	t.Setenv("CLUBSYNC_DATA_DIR", t.TempDir())
	t.Setenv("CLUBSYNC_SYNC_MAX_RETRIES", "9")
	t.Setenv("CLUBSYNC_LOG_LEVEL", "warn")

	loader := NewLoader(filepath.Join("testdata", "valid-minimal.yaml"), "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Sync.MaxRetries)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Contains(t, loader.ConsumedEnvKeys, "CLUBSYNC_SYNC_MAX_RETRIES")
}

func TestENVInvalidValueKeepsFileValue(t *testing.T) {
	t.Setenv("CLUBSYNC_DATA_DIR", t.TempDir())
	t.Setenv("CLUBSYNC_SYNC_INTERVAL", "soon")

	cfg, err := NewLoader(filepath.Join("testdata", "valid-minimal.yaml"), "test").Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
}

func TestValidate_CollectsAllFieldErrors(t *testing.T) {
	cfg := Default()
	cfg.Sync.MaxRetries = 0
	cfg.Sync.BackoffMax = time.Millisecond
	cfg.Enrollment.MinStartingWeight = 600
	cfg.Backend = "postgres"

	err := Validate(cfg)
	require.Error(t, err)
	for _, field := range []string{"Sync.MaxRetries", "Sync.BackoffMax", "Enrollment.StartingWeight", "Backend"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Default()
	cfg.DeadLetter.Path = "/tmp/dl.db"
	assert.NoError(t, Validate(cfg))
}

func TestWriteFile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clubsync.yaml")

	want := Default()
	want.DataDir = dir
	want.Sync.MaxRetries = 7
	want.Health.ReachabilityURL = "https://example.com/ping"
	require.NoError(t, WriteFile(path, want, false))

	got, err := NewLoader(path, "v1").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, got.Sync.MaxRetries)
	assert.Equal(t, want.Sync.BackoffMax, got.Sync.BackoffMax)
	assert.Equal(t, "https://example.com/ping", got.Health.ReachabilityURL)

	assert.Error(t, WriteFile(path, want, false), "existing file must not be replaced")
	assert.NoError(t, WriteFile(path, want, true))
}
