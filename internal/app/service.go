// Package service wires the survival engine, the batch pipeline and the
// stores into the operations the HTTP API and CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/survcast/internal/adapters/cohort"
	"github.com/okian/survcast/internal/adapters/mq/queue"
	"github.com/okian/survcast/internal/adapters/mq/worker"
	"github.com/okian/survcast/internal/adapters/repository"
	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/dedupe"
	"github.com/okian/survcast/internal/domain/ensemble"
	"github.com/okian/survcast/internal/domain/explain"
	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/model"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/internal/domain/stats"
	"github.com/okian/survcast/internal/domain/survival"
	"github.com/okian/survcast/pkg/logger"
	"github.com/okian/survcast/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	ErrNoCohort    = errors.New("no stored cohort for tier")
	ErrUnknownTier = errors.New("unknown risk tier")
)

// Prediction is the full response for one patient. KaplanMeier is the
// stored cohort curve for RiskTier, when one exists.
type Prediction struct {
	PatientID           string                        `json:"patientId"`
	RiskScore           float64                       `json:"riskScore"`
	RiskTier            risk.Tier                     `json:"riskTier"`
	SurvivalProbability float64                       `json:"survivalProbability"`
	Ensemble            ensemble.Result               `json:"ensemble"`
	Curves              map[adapter.ID]survival.Curve `json:"curves"`
	KaplanMeier         *kaplanmeier.GroupCurve       `json:"kaplanMeier,omitempty"`
	TopFeatures         []adapter.FeatureImportance   `json:"topFeatures"`
	TopFeatureSource    string                        `json:"topFeatureSource"`
	ModelPerformance    map[adapter.ID]adapter.Score  `json:"modelPerformance"`
	FailedAdapters      map[adapter.ID]string         `json:"failedAdapters,omitempty"`
	ScoredAt            time.Time                     `json:"scoredAt"`
}

// GroupComparison is two KM fits plus the log-rank test between them.
type GroupComparison struct {
	kaplanmeier.Comparison
	LogRank stats.LogRankResult `json:"logRank"`
}

// Submission is the outcome of SubmitJob.
type Submission struct {
	Job       repository.JobRecord `json:"job"`
	Duplicate bool                 `json:"duplicate"`
}

// ModelInfo describes one loaded adapter.
type ModelInfo struct {
	ID           adapter.ID           `json:"id"`
	CIndex       float64              `json:"cIndex"`
	Features     []string             `json:"features"`
	Capabilities adapter.Capabilities `json:"capabilities"`
	Reference    bool                 `json:"reference"`
}

// Stats is a monitoring snapshot.
type Stats struct {
	Started       bool              `json:"started"`
	Models        int               `json:"models"`
	WorkerCount   int               `json:"workerCount"`
	QueueLength   int               `json:"queueLength"`
	DedupeEntries int64             `json:"dedupeEntries"`
	Worklist      int               `json:"worklistPatients"`
	CohortTiers   map[risk.Tier]int `json:"cohortSubjects"`
}

// Service implements the API dependencies for the survival engine.
type Service struct {
	mu sync.RWMutex

	registry *adapter.Registry
	scorer   *batch.Scorer
	cohorts  cohort.Store
	worklist repository.Worklist
	jobs     repository.Jobs
	queue    queue.Queue
	index    dedupe.Index
	pool     *worker.Pool

	workerCount int
	confidence  float64
	topN        int
	explainers  []explain.Explainer
	now         func() time.Time

	// groups and tierKM are filled by Start and read-only afterwards.
	groups map[risk.Tier]kaplanmeier.Group
	tierKM map[risk.Tier]kaplanmeier.GroupCurve

	// fingerprints maps in-flight job ids to their upload fingerprint.
	fpMu         sync.Mutex
	fingerprints map[string]string

	started bool
	logger  logger.Logger
}

// New constructs a Service. cohorts may be nil, in which case predictions
// carry no Kaplan-Meier section and tier comparisons fail with ErrNoCohort.
func New(
	registry *adapter.Registry,
	scorer *batch.Scorer,
	cohorts cohort.Store,
	worklist repository.Worklist,
	jobs repository.Jobs,
	q queue.Queue,
	index dedupe.Index,
	opts ...Option,
) *Service {
	s := &Service{
		registry:     registry,
		scorer:       scorer,
		cohorts:      cohorts,
		worklist:     worklist,
		jobs:         jobs,
		queue:        q,
		index:        index,
		workerCount:  1,
		confidence:   kaplanmeier.DefaultConfidenceLevel,
		topN:         explain.DefaultTopN,
		explainers:   []explain.Explainer{explain.Builtin{}, explain.Occlusion{}},
		now:          time.Now,
		groups:       make(map[risk.Tier]kaplanmeier.Group),
		tierKM:       make(map[risk.Tier]kaplanmeier.GroupCurve),
		fingerprints: make(map[string]string),
		logger:       logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fits the per-tier cohort curves and starts the job workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.loadCohorts(ctx); err != nil {
		return err
	}

	s.pool = worker.NewPool(s.workerCount, s.queue, s, &jobTracker{s: s})
	s.pool.Start(context.WithoutCancel(ctx))
	s.started = true

	s.logger.Info(ctx, "survival service started",
		logger.Int("models", len(s.registry.All())),
		logger.Int("workers", s.workerCount),
		logger.Int("cohortTiers", len(s.tierKM)),
	)
	return nil
}

func (s *Service) loadCohorts(ctx context.Context) error {
	if s.cohorts == nil {
		s.logger.Warn(ctx, "no cohort store configured; predictions carry no Kaplan-Meier curve")
		return nil
	}
	if err := s.cohorts.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate cohort store: %w", err)
	}
	for _, tier := range risk.Tiers {
		start := time.Now()
		g, err := s.cohorts.LoadTier(ctx, tier)
		if err != nil {
			return fmt.Errorf("load %s cohort: %w", tier, err)
		}
		if len(g.Durations) == 0 {
			s.logger.Warn(ctx, "no stored cohort for tier", logger.String("tier", string(tier)))
			continue
		}
		e, err := kaplanmeier.FitGroup(g, s.kmOptions()...)
		if err != nil {
			return fmt.Errorf("fit %s cohort: %w", tier, err)
		}
		gc, err := kaplanmeier.Summarize(e)
		if err != nil {
			return fmt.Errorf("summarize %s cohort: %w", tier, err)
		}
		s.groups[tier] = g
		s.tierKM[tier] = gc
		metrics.RecordCohortLoad(string(tier), len(g.Durations), float64(time.Since(start).Milliseconds()))
		s.logger.Info(ctx, "cohort curve fitted",
			logger.String("tier", string(tier)),
			logger.Int("subjects", gc.Subjects),
			logger.Int("events", gc.Events),
		)
	}
	return nil
}

func (s *Service) kmOptions() []kaplanmeier.Option {
	return []kaplanmeier.Option{
		kaplanmeier.WithGrid(s.registry.Grid()),
		kaplanmeier.WithConfidenceLevel(s.confidence),
	}
}

// Stop drains the job queue and closes the cohort store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping survival service")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.cohorts != nil {
		if err := s.cohorts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cohort store: %w", err))
		}
	}
	s.started = false
	return errors.Join(errs...)
}

// Predict scores one patient record with every adapter and picks the
// consensus. record uses the patient form's keys.
func (s *Service) Predict(ctx context.Context, record map[string]interface{}) (*Prediction, error) {
	start := time.Now()

	p, err := features.Decode(record)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = newPatientID()
	}
	v := features.Transform(p)

	estimates := make(map[adapter.ID]survival.Estimate, len(s.registry.All()))
	failed := make(map[adapter.ID]string)
	for _, a := range s.registry.All() {
		t0 := time.Now()
		est, err := a.Predict(v)
		metrics.RecordAdapterLatency(string(a.ID()), float64(time.Since(t0).Microseconds())/1000)
		if err != nil {
			metrics.RecordAdapterError(string(a.ID()))
			s.logger.Warn(ctx, "adapter failed", logger.String("adapter", string(a.ID())), logger.Error(err))
			failed[a.ID()] = err.Error()
			continue
		}
		estimates[a.ID()] = est
	}

	res, err := ensemble.Select(estimates, s.registry.Scores())
	if err != nil {
		return nil, err
	}
	tier := risk.TierOf(res.RiskScore)

	out := &Prediction{
		PatientID:           p.ID,
		RiskScore:           res.RiskScore,
		RiskTier:            tier,
		SurvivalProbability: res.SurvivalProbability,
		Ensemble:            res,
		Curves:              make(map[adapter.ID]survival.Curve, len(estimates)),
		ModelPerformance:    s.registry.Scores(),
		ScoredAt:            s.now().UTC(),
	}
	if len(failed) > 0 {
		out.FailedAdapters = failed
	}
	for id, est := range estimates {
		out.Curves[id] = est.Curve
	}
	if gc, ok := s.tierKM[tier]; ok {
		out.KaplanMeier = &gc
	}

	ranking := explain.Explain(ctx, s.registry.Reference(), v, s.topN, s.explainers...)
	if ranking.Source == explain.SourceFallback {
		metrics.RecordExplainFallback()
		s.logger.Warn(ctx, "feature ranking fell back to static list", logger.Error(ranking.Err))
	}
	out.TopFeatures, out.TopFeatureSource = ranking.Features, ranking.Source

	if err := s.worklist.Record(ctx, model.Assessment{
		PatientID:               out.PatientID,
		RiskScore:               out.RiskScore,
		Tier:                    tier,
		PredictedSurvivalMonths: res.Consensus.Months,
		MedianReached:           res.Consensus.Reached,
		ScoredAt:                out.ScoredAt,
	}); err != nil {
		s.logger.Error(ctx, "worklist update failed", logger.String("patientId", out.PatientID), logger.Error(err))
	}

	metrics.RecordEnsembleWinner(string(res.Selected))
	metrics.RecordRiskTier(string(tier))
	metrics.RecordPrediction(float64(time.Since(start).Microseconds()) / 1000)
	return out, nil
}

func newPatientID() string {
	return "PATIENT-" + strings.ToUpper(uuid.NewString()[:8])
}

// BatchScore reads an uploaded CSV or XLSX file and scores every row.
func (s *Service) BatchScore(ctx context.Context, fileName string, data []byte) (*batch.Result, error) {
	table, err := tabular.Read(fileName, data)
	if err != nil {
		return nil, err
	}
	res, err := s.scorer.Score(ctx, fileName, table)
	if err != nil {
		return nil, err
	}
	for _, row := range res.Patients {
		if !row.OK() {
			continue
		}
		if err := s.worklist.Record(ctx, model.Assessment{
			PatientID:               row.PatientID,
			RiskScore:               row.RiskScore,
			Tier:                    row.RiskTier,
			PredictedSurvivalMonths: row.PredictedSurvivalMonths,
			MedianReached:           row.MedianReached,
			ScoredAt:                res.ProcessedAt,
		}); err != nil {
			s.logger.Error(ctx, "worklist update failed", logger.String("patientId", row.PatientID), logger.Error(err))
		}
	}
	return res, nil
}

// Process implements worker.Processor.
func (s *Service) Process(ctx context.Context, j model.Job) (*batch.Result, error) { //nolint:gocritic // hugeParam: jobs travel by value
	return s.BatchScore(ctx, j.FileName, j.Data)
}

// CompareGroups fits two ad-hoc groups and runs the log-rank test.
func (s *Service) CompareGroups(ctx context.Context, a, b kaplanmeier.Group) (*GroupComparison, error) {
	cmp, err := kaplanmeier.CompareGroups(a, b, s.kmOptions()...)
	if err != nil {
		return nil, err
	}
	lr, err := stats.LogRank(
		stats.Sample{Durations: a.Durations, Events: a.Events},
		stats.Sample{Durations: b.Durations, Events: b.Events},
	)
	if err != nil {
		return nil, err
	}
	return &GroupComparison{Comparison: cmp, LogRank: lr}, nil
}

// CompareTiers compares the stored cohorts of two tiers.
func (s *Service) CompareTiers(ctx context.Context, a, b risk.Tier) (*GroupComparison, error) {
	groups := make([]kaplanmeier.Group, 0, 2)
	for _, t := range []risk.Tier{a, b} {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, t)
		}
		g, ok := s.groups[t]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoCohort, t)
		}
		groups = append(groups, g)
	}
	return s.CompareGroups(ctx, groups[0], groups[1])
}

// SubmitJob queues an upload for asynchronous scoring. An upload identical
// to one already accepted returns the existing job.
func (s *Service) SubmitJob(ctx context.Context, fileName string, data []byte) (*Submission, error) {
	if _, err := tabular.FormatOf(fileName); err != nil {
		return nil, err
	}
	fp := dedupe.Fingerprint(data)
	id := uuid.NewString()

	owner, seen := s.index.Claim(ctx, fp, id)
	if seen {
		rec, err := s.jobs.Get(ctx, owner)
		if err == nil {
			metrics.RecordJobDuplicate()
			return &Submission{Job: rec, Duplicate: true}, nil
		}
		// the owning record was evicted; take the fingerprint over
		s.index.Release(ctx, fp)
		if owner, seen = s.index.Claim(ctx, fp, id); seen {
			return nil, fmt.Errorf("job %s claimed concurrently: %w", owner, repository.ErrDuplicateJob)
		}
	}

	j := model.Job{
		ID:          id,
		FileName:    fileName,
		Fingerprint: fp,
		Data:        data,
		SubmittedAt: s.now().UTC(),
	}
	rec, err := s.jobs.Create(ctx, j)
	if err != nil {
		s.index.Release(ctx, fp)
		return nil, err
	}
	s.track(id, fp)
	if err := s.queue.Enqueue(ctx, j); err != nil {
		s.untrack(ctx, id)
		if ferr := s.jobs.Fail(ctx, id, err.Error()); ferr != nil {
			s.logger.Warn(ctx, "could not mark job failed", logger.String("jobID", id), logger.Error(ferr))
		}
		return nil, err
	}
	s.logger.Info(ctx, "job queued", logger.String("jobID", id), logger.String("file", fileName))
	return &Submission{Job: rec}, nil
}

func (s *Service) track(id, fp string) {
	s.fpMu.Lock()
	s.fingerprints[id] = fp
	s.fpMu.Unlock()
}

// untrack releases the job's fingerprint so the same file can be resubmitted.
func (s *Service) untrack(ctx context.Context, id string) {
	s.fpMu.Lock()
	fp, ok := s.fingerprints[id]
	delete(s.fingerprints, id)
	s.fpMu.Unlock()
	if ok {
		s.index.Release(ctx, fp)
	}
}

// Job returns a job record.
func (s *Service) Job(ctx context.Context, id string) (repository.JobRecord, error) {
	return s.jobs.Get(ctx, id)
}

// Worklist returns the n highest-risk patients.
func (s *Service) Worklist(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.worklist.TopN(ctx, n)
}

// WorklistRank returns one patient's worklist position.
func (s *Service) WorklistRank(ctx context.Context, patientID string) (repository.Entry, error) {
	return s.worklist.Rank(ctx, patientID)
}

// Models lists the loaded adapters in priority order.
func (s *Service) Models() []ModelInfo {
	all := s.registry.All()
	out := make([]ModelInfo, 0, len(all))
	for _, a := range all {
		out = append(out, ModelInfo{
			ID:           a.ID(),
			CIndex:       a.ValidationScore().CIndex,
			Features:     a.Features(),
			Capabilities: a.Capabilities(),
			Reference:    a.ID() == adapter.Reference,
		})
	}
	return out
}

// CohortCurve returns the fitted curve of a stored tier.
func (s *Service) CohortCurve(tier risk.Tier) (kaplanmeier.GroupCurve, bool) {
	gc, ok := s.tierKM[tier]
	return gc, ok
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		Models:        len(s.registry.All()),
		WorkerCount:   s.workerCount,
		QueueLength:   s.queue.Len(ctx),
		DedupeEntries: s.index.Size(),
		Worklist:      s.worklist.Count(ctx),
		CohortTiers:   make(map[risk.Tier]int, len(s.tierKM)),
	}
	for t, gc := range s.tierKM {
		st.CohortTiers[t] = gc.Subjects
	}
	return st
}

// jobTracker forwards lifecycle transitions to the job store and frees the
// upload fingerprint of failed jobs.
type jobTracker struct {
	s *Service
}

func (t *jobTracker) Start(ctx context.Context, id string) error {
	return t.s.jobs.Start(ctx, id)
}

func (t *jobTracker) Complete(ctx context.Context, id string, res *batch.Result) error {
	t.s.fpMu.Lock()
	delete(t.s.fingerprints, id)
	t.s.fpMu.Unlock()
	return t.s.jobs.Complete(ctx, id, res)
}

func (t *jobTracker) Fail(ctx context.Context, id string, reason string) error {
	t.s.untrack(ctx, id)
	return t.s.jobs.Fail(ctx, id, reason)
}
