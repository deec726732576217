// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/clubsync/internal/validate"
)

// Validate checks every field and returns all failures joined.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("LogLevel", validate.NormalizeLevel(cfg.LogLevel), validate.LogLevels)
	v.NotEmpty("DataDir", cfg.DataDir)
	v.OneOf("Backend", cfg.Backend, validate.Backends)

	v.PositiveDuration("Sync.Interval", cfg.Sync.Interval)
	v.Range("Sync.MaxRetries", cfg.Sync.MaxRetries, 1, 100)
	v.PositiveDuration("Sync.BackoffBase", cfg.Sync.BackoffBase)
	v.PositiveDuration("Sync.BackoffMax", cfg.Sync.BackoffMax)
	if cfg.Sync.BackoffMax < cfg.Sync.BackoffBase {
		v.AddError("Sync.BackoffMax", "must not be smaller than Sync.BackoffBase", cfg.Sync.BackoffMax)
	}
	v.FloatRange("Sync.Jitter", cfg.Sync.Jitter, 0, 1)
	v.FloatRange("Sync.DrainRate", cfg.Sync.DrainRate, 0.01, 10000)
	v.Positive("Sync.DrainBurst", cfg.Sync.DrainBurst)
	v.PositiveDuration("Sync.CallTimeout", cfg.Sync.CallTimeout)
	v.Range("Sync.ErrorHistory", cfg.Sync.ErrorHistory, 1, 10000)

	v.PositiveDuration("Health.Interval", cfg.Health.Interval)
	v.PositiveDuration("Health.ProbeTimeout", cfg.Health.ProbeTimeout)
	if cfg.Health.ReachabilityURL != "" {
		v.URL("Health.ReachabilityURL", cfg.Health.ReachabilityURL, []string{"http", "https"})
	}

	v.Range("Enrollment.MaxActivePrograms", cfg.Enrollment.MaxActivePrograms, 1, 100)
	if cfg.Enrollment.MinStartingWeight <= 0 || cfg.Enrollment.MaxStartingWeight <= cfg.Enrollment.MinStartingWeight {
		v.AddError("Enrollment.StartingWeight", "range must be positive and non-empty", [2]float64{cfg.Enrollment.MinStartingWeight, cfg.Enrollment.MaxStartingWeight})
	}
	v.FloatRange("Adaptation.DeviationThreshold", cfg.Adaptation.DeviationThreshold, 0.01, 10)

	v.Positive("Breaker.Threshold", cfg.Breaker.Threshold)
	v.PositiveDuration("Breaker.ResetTimeout", cfg.Breaker.ResetTimeout)

	if cfg.API.ListenAddr != "" {
		v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	}
	v.Positive("API.RateLimit", cfg.API.RateLimit)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.ExporterType", cfg.Telemetry.ExporterType, validate.ExporterTypes)
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.DeadLetter.Enabled {
		v.NotEmpty("DeadLetter.Path", cfg.DeadLetter.Path)
	}

	return v.Err()
}
