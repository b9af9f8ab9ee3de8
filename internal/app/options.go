package service

import (
	"time"

	"github.com/okian/survcast/internal/domain/explain"
	"github.com/okian/survcast/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithConfidenceLevel sets the Kaplan-Meier confidence level.
func WithConfidenceLevel(level float64) Option {
	return func(s *Service) {
		if level > 0 && level < 1 {
			s.confidence = level
		}
	}
}

// WithTopN sets how many features predictions carry.
func WithTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithExplainers replaces the explainer chain.
func WithExplainers(e ...explain.Explainer) Option {
	return func(s *Service) {
		s.explainers = e
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
