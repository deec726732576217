// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
	DataDir    string `yaml:"dataDir"`

	// Backend selects the collaborator implementation set.
	Backend string `yaml:"backend"`

	Sync       SyncConfig       `yaml:"sync"`
	Health     HealthConfig     `yaml:"health"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Adaptation AdaptationConfig `yaml:"adaptation"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	API        APIConfig        `yaml:"api"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	DeadLetter DeadLetterConfig `yaml:"deadLetter"`
}

// SyncConfig tunes the retry queue and the background sync ticker.
type SyncConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxRetries  int           `yaml:"maxRetries"`
	BackoffBase time.Duration `yaml:"backoffBase"`
	BackoffMax  time.Duration `yaml:"backoffMax"`
	// Jitter is the +/- fraction applied to each backoff delay.
	Jitter float64 `yaml:"jitter"`
	// DrainRate is the max dispatches per second during a drain.
	DrainRate    float64       `yaml:"drainRate"`
	DrainBurst   int           `yaml:"drainBurst"`
	CallTimeout  time.Duration `yaml:"callTimeout"`
	ErrorHistory int           `yaml:"errorHistory"`
}

type HealthConfig struct {
	Interval        time.Duration `yaml:"interval"`
	ProbeTimeout    time.Duration `yaml:"probeTimeout"`
	ReachabilityURL string        `yaml:"reachabilityUrl"`
}

type EnrollmentConfig struct {
	MaxActivePrograms int     `yaml:"maxActivePrograms"`
	MinStartingWeight float64 `yaml:"minStartingWeight"`
	MaxStartingWeight float64 `yaml:"maxStartingWeight"`
}

type AdaptationConfig struct {
	// DeviationThreshold is the relative duration deviation that triggers regeneration.
	DeviationThreshold float64 `yaml:"deviationThreshold"`
}

type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"resetTimeout"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client on mutating routes.
	RateLimit int `yaml:"rateLimit"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Environment  string  `yaml:"environment"`
	ExporterType string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

type DeadLetterConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <dataDir>/deadletter.db when empty.
	Path string `yaml:"path"`
}
