// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "clubsync",
		DataDir:    "/var/lib/clubsync",
		Backend:    "memory",
		Sync: SyncConfig{
			Interval:     5 * time.Minute,
			MaxRetries:   5,
			BackoffBase:  2 * time.Second,
			BackoffMax:   5 * time.Minute,
			Jitter:       0.1,
			DrainRate:    5,
			DrainBurst:   1,
			CallTimeout:  15 * time.Second,
			ErrorHistory: 50,
		},
		Health: HealthConfig{
			Interval:     time.Minute,
			ProbeTimeout: 5 * time.Second,
		},
		Enrollment: EnrollmentConfig{
			MaxActivePrograms: 3,
			MinStartingWeight: 1,
			MaxStartingWeight: 500,
		},
		Adaptation: AdaptationConfig{
			DeviationThreshold: 0.20,
		},
		Breaker: BreakerConfig{
			Threshold:    5,
			ResetTimeout: 30 * time.Second,
		},
		API: APIConfig{
			ListenAddr: ":8088",
			RateLimit:  60,
		},
		Telemetry: TelemetryConfig{
			Environment:  "development",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		DeadLetter: DeadLetterConfig{
			Enabled: true,
		},
	}
}
