//go:build wireinject

package service

import (
	"context"

	"github.com/google/wire"

	"github.com/okian/survcast/internal/config"
)

// Initialize builds a Service from configuration.
func Initialize(ctx context.Context, cfg *config.Config) (*Service, error) {
	wire.Build(
		provideGrid,
		provideRegistry,
		provideScorer,
		provideCohortStore,
		provideWorklist,
		provideJobs,
		provideQueue,
		provideIndex,
		provideService,
	)
	return nil, nil
}
