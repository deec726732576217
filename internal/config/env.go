// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/clubsync/internal/log"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment key.
const EnvPrefix = "CLUBSYNC_"

// ParseString reads key from the environment or returns defaultValue.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logSource(logger, key, v)
		return v
	}
	return defaultValue
}

// ParseInt reads an integer, falling back to defaultValue on absence or parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseWith(key, defaultValue, strconv.Atoi)
}

// ParseFloat reads a float, falling back to defaultValue on absence or parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseWith(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseDuration reads a Go duration string.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseWith(key, defaultValue, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no.
func ParseBool(key string, defaultValue bool) bool {
	return parseWith(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}

func parseWith[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	logSource(logger, key, v)
	return parsed
}

func logSource(logger zerolog.Logger, key, value string) {
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	lower := strings.ToLower(key)
	if strings.Contains(lower, "token") || strings.Contains(lower, "password") {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", value)
	}
	ev.Msg("using environment variable")
}

func (l *Loader) envString(key, cur string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, cur)
}

func (l *Loader) envInt(key string, cur int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, cur)
}

func (l *Loader) envFloat(key string, cur float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, cur)
}

func (l *Loader) envDuration(key string, cur time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, cur)
}

func (l *Loader) envBool(key string, cur bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, cur)
}

// mergeEnvConfig overrides cfg with every CLUBSYNC_* variable that is set.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)
	cfg.DataDir = l.envString(EnvPrefix+"DATA_DIR", cfg.DataDir)
	cfg.Backend = l.envString(EnvPrefix+"BACKEND", cfg.Backend)

	cfg.Sync.Interval = l.envDuration(EnvPrefix+"SYNC_INTERVAL", cfg.Sync.Interval)
	cfg.Sync.MaxRetries = l.envInt(EnvPrefix+"SYNC_MAX_RETRIES", cfg.Sync.MaxRetries)
	cfg.Sync.BackoffBase = l.envDuration(EnvPrefix+"SYNC_BACKOFF_BASE", cfg.Sync.BackoffBase)
	cfg.Sync.BackoffMax = l.envDuration(EnvPrefix+"SYNC_BACKOFF_MAX", cfg.Sync.BackoffMax)
	cfg.Sync.Jitter = l.envFloat(EnvPrefix+"SYNC_JITTER", cfg.Sync.Jitter)
	cfg.Sync.DrainRate = l.envFloat(EnvPrefix+"SYNC_DRAIN_RATE", cfg.Sync.DrainRate)
	cfg.Sync.DrainBurst = l.envInt(EnvPrefix+"SYNC_DRAIN_BURST", cfg.Sync.DrainBurst)
	cfg.Sync.CallTimeout = l.envDuration(EnvPrefix+"CALL_TIMEOUT", cfg.Sync.CallTimeout)
	cfg.Sync.ErrorHistory = l.envInt(EnvPrefix+"ERROR_HISTORY", cfg.Sync.ErrorHistory)

	cfg.Health.Interval = l.envDuration(EnvPrefix+"HEALTH_INTERVAL", cfg.Health.Interval)
	cfg.Health.ProbeTimeout = l.envDuration(EnvPrefix+"HEALTH_PROBE_TIMEOUT", cfg.Health.ProbeTimeout)
	cfg.Health.ReachabilityURL = l.envString(EnvPrefix+"REACHABILITY_URL", cfg.Health.ReachabilityURL)

	cfg.Enrollment.MaxActivePrograms = l.envInt(EnvPrefix+"MAX_ACTIVE_PROGRAMS", cfg.Enrollment.MaxActivePrograms)
	cfg.Enrollment.MinStartingWeight = l.envFloat(EnvPrefix+"MIN_STARTING_WEIGHT", cfg.Enrollment.MinStartingWeight)
	cfg.Enrollment.MaxStartingWeight = l.envFloat(EnvPrefix+"MAX_STARTING_WEIGHT", cfg.Enrollment.MaxStartingWeight)
	cfg.Adaptation.DeviationThreshold = l.envFloat(EnvPrefix+"DEVIATION_THRESHOLD", cfg.Adaptation.DeviationThreshold)

	cfg.Breaker.Threshold = l.envInt(EnvPrefix+"BREAKER_THRESHOLD", cfg.Breaker.Threshold)
	cfg.Breaker.ResetTimeout = l.envDuration(EnvPrefix+"BREAKER_RESET_TIMEOUT", cfg.Breaker.ResetTimeout)

	cfg.API.ListenAddr = l.envString(EnvPrefix+"API_LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt(EnvPrefix+"API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Environment = l.envString(EnvPrefix+"TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.ExporterType = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.DeadLetter.Enabled = l.envBool(EnvPrefix+"DEADLETTER_ENABLED", cfg.DeadLetter.Enabled)
	cfg.DeadLetter.Path = l.envString(EnvPrefix+"DEADLETTER_PATH", cfg.DeadLetter.Path)
}
