// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/clubsync/internal/config"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts serving.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkRuntimeSettings(logger, cfg); err != nil {
		return fmt.Errorf("configuration check failed: %w", err)
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

func checkRuntimeSettings(logger zerolog.Logger, cfg config.AppConfig) error {
	if cfg.DeadLetter.Enabled {
		dir := filepath.Dir(cfg.DeadLetter.Path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("dead-letter directory %s: %w", dir, err)
		}
	}

	if cfg.Health.ReachabilityURL == "" {
		logger.Warn().Msg("no reachability URL configured; network health follows explicit connectivity notifications only")
	}

	if cfg.Sync.CallTimeout >= cfg.Sync.Interval {
		logger.Warn().
			Dur("call_timeout", cfg.Sync.CallTimeout).
			Dur("sync_interval", cfg.Sync.Interval).
			Msg("collaborator call timeout is not shorter than the sync interval")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().Str("data_dir", cfg.DataDir).Msg("data directory is under temp; the dead-letter archive may be lost on reboot")
	}
	return nil
}
