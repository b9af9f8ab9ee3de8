package service

import (
	"context"

	"github.com/okian/survcast/internal/adapters/artifact"
	"github.com/okian/survcast/internal/adapters/cohort"
	"github.com/okian/survcast/internal/adapters/mq/queue"
	"github.com/okian/survcast/internal/adapters/repository"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/config"
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/dedupe"
	"github.com/okian/survcast/internal/domain/survival"
)

func provideGrid(cfg *config.Config) (survival.Grid, error) {
	return survival.NewGrid(cfg.GridStart, cfg.GridEnd, cfg.GridStep)
}

func provideRegistry(cfg *config.Config, grid survival.Grid) (*adapter.Registry, error) {
	return artifact.Load(cfg.ArtifactPath, grid, cfg.LandmarkMonth)
}

func provideScorer(cfg *config.Config, reg *adapter.Registry) *batch.Scorer {
	return batch.NewScorer(reg,
		batch.WithConcurrency(cfg.BatchConcurrency),
		batch.WithTopN(cfg.ExplainTopN),
	)
}

// provideCohortStore returns a nil store for the "none" driver.
func provideCohortStore(ctx context.Context, cfg *config.Config) (cohort.Store, error) {
	if cfg.CohortDriver == cohort.DriverNone {
		return nil, nil //nolint:nilnil // no store is a valid configuration
	}
	return cohort.Open(ctx, cfg.CohortDriver, cfg.CohortDSN)
}

func provideWorklist() repository.Worklist {
	return repository.NewTreapStore()
}

func provideJobs() repository.Jobs {
	return repository.NewJobStore()
}

func provideQueue(cfg *config.Config) queue.Queue {
	return queue.NewInMemoryQueue(queue.WithCapacity(cfg.JobQueueSize))
}

func provideIndex(cfg *config.Config) dedupe.Index {
	return dedupe.NewInMemoryIndex(dedupe.WithMaxSize(cfg.JobDedupeSize))
}

func provideService(
	cfg *config.Config,
	reg *adapter.Registry,
	scorer *batch.Scorer,
	cohorts cohort.Store,
	worklist repository.Worklist,
	jobs repository.Jobs,
	q queue.Queue,
	index dedupe.Index,
) *Service {
	return New(reg, scorer, cohorts, worklist, jobs, q, index,
		WithWorkerCount(cfg.JobWorkerCount),
		WithConfidenceLevel(cfg.ConfidenceLevel),
		WithTopN(cfg.ExplainTopN),
	)
}
