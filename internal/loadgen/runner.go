package loadgen

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/survcast/pkg/logger"
)

// Defaults applied by Run to zero Config fields.
const (
	DefaultPatients = 1000
	DefaultTopN     = 20
	DefaultTimeout  = 30 * time.Second
)

// ErrAllFailed is returned when no patient could be scored.
var ErrAllFailed = errors.New("every prediction failed")

// Run executes a complete load run: health check, submission, worklist
// verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	applyDefaults(cfg)
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now(), TierCounts: make(map[string]int)}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("patients", cfg.Patients),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	patients := Generate(cfg.Patients, cfg.Seed)
	stats.Generated = len(patients)

	results := submitPatients(ctx, cfg, c, patients, stats)
	if len(results) == 0 && len(patients) > 0 {
		return stats, ErrAllFailed
	}

	if err := verifyWorklist(ctx, cfg, c, results, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, stats)
	return stats, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Patients <= 0 {
		cfg.Patients = DefaultPatients
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
}

func logFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	logger.Get().Named("loadgen").Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Any("tiers", stats.TierCounts),
		logger.Int("worklistEntries", stats.WorklistEntries),
		logger.Int("ranksChecked", stats.RanksChecked),
		logger.Duration("duration", stats.Duration),
		logger.Float64("patientsPerSecond", perSecond))
}
