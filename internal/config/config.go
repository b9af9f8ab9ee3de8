// Package config defines the service configuration and its loading rules.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// ArtifactPath points at the model manifest.
	ArtifactPath string `koanf:"artifact_path"`

	// Grid and landmark, in months.
	GridStart     float64 `koanf:"grid_start"`
	GridEnd       float64 `koanf:"grid_end"`
	GridStep      float64 `koanf:"grid_step"`
	LandmarkMonth float64 `koanf:"landmark_month"`

	// ConfidenceLevel of the Kaplan-Meier bounds.
	ConfidenceLevel float64 `koanf:"confidence_level"`

	// BatchConcurrency bounds parallel row scoring inside one file.
	BatchConcurrency int `koanf:"batch_concurrency"`
	// MaxUploadBytes caps uploaded batch files.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// Async job pipeline.
	JobQueueSize   int `koanf:"job_queue_size"`
	JobWorkerCount int `koanf:"job_worker_count"`
	JobDedupeSize  int `koanf:"job_dedupe_size"`

	// CohortDriver is sqlite, postgres or none.
	CohortDriver string `koanf:"cohort_driver"`
	CohortDSN    string `koanf:"cohort_dsn"`

	// RateLimitRPS of zero disables rate limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MaxWorklistLimit caps GET /api/worklist?limit.
	MaxWorklistLimit int `koanf:"max_worklist_limit"`

	// ExplainTopN is the number of features returned with predictions.
	ExplainTopN int `koanf:"explain_top_n"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		ShutdownTimeout:    10 * time.Second,
		ArtifactPath:       "configs/models.yaml",
		GridStart:          0,
		GridEnd:            60,
		GridStep:           3,
		LandmarkMonth:      24,
		ConfidenceLevel:    0.95,
		BatchConcurrency:   runtime.NumCPU(),
		MaxUploadBytes:     10 << 20,
		JobQueueSize:       1_000,
		JobWorkerCount:     runtime.NumCPU(),
		JobDedupeSize:      10_000,
		CohortDriver:       "sqlite",
		CohortDSN:          "file:survcast.db",
		RateLimitRPS:       0,
		RateLimitBurst:     20,
		CORSAllowedOrigins: []string{"*"},
		MaxWorklistLimit:   100,
		ExplainTopN:        5,
	}
}
