package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvPrefix = "SURVCAST_"
	EnvConfig = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. YAML file named by SURVCAST_CONFIG, if set
//  3. env vars with the SURVCAST_ prefix
func Load(_ context.Context) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// SURVCAST_JOB_QUEUE_SIZE -> job_queue_size; keys stay flat.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.GridStep <= 0 || c.GridEnd <= c.GridStart || c.GridStart < 0:
		return fmt.Errorf("%w: grid %v..%v step %v", ErrInvalidConfig, c.GridStart, c.GridEnd, c.GridStep)
	case c.LandmarkMonth < c.GridStart || c.LandmarkMonth > c.GridEnd:
		return fmt.Errorf("%w: landmark %v outside the grid", ErrInvalidConfig, c.LandmarkMonth)
	case c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1:
		return fmt.Errorf("%w: confidence_level %v", ErrInvalidConfig, c.ConfidenceLevel)
	case c.BatchConcurrency < 1 || c.JobWorkerCount < 1 || c.JobQueueSize < 1:
		return fmt.Errorf("%w: concurrency, workers and queue size must be positive", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.RateLimitRPS < 0:
		return fmt.Errorf("%w: rate_limit_rps must not be negative", ErrInvalidConfig)
	}
	switch c.CohortDriver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("%w: cohort_driver %q", ErrInvalidConfig, c.CohortDriver)
	}
	return nil
}
