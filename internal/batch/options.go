package batch

import (
	"time"

	"github.com/okian/survcast/internal/domain/explain"
	"github.com/okian/survcast/pkg/logger"
)

// Option configures a Scorer.
type Option func(*Scorer)

// WithConcurrency bounds the number of rows scored at once.
func WithConcurrency(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTopN sets how many features the result ranks.
func WithTopN(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithExplainers replaces the explainer chain.
func WithExplainers(e ...explain.Explainer) Option {
	return func(s *Scorer) {
		s.explainers = e
	}
}

// WithClock overrides the processing timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}
