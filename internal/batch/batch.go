// Package batch scores uploaded patient tables with the reference model and
// stratifies the cohort.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/ensemble"
	"github.com/okian/survcast/internal/domain/explain"
	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/pkg/logger"
	"github.com/okian/survcast/pkg/metrics"
)

// IDColumn must be present in every upload.
const IDColumn = "patient_id"

// ErrMissingColumn is returned when an upload lacks IDColumn.
var ErrMissingColumn = errors.New("missing required column")

// Row is the outcome for one uploaded patient. Error is set, and the numeric
// fields are zero, when the row could not be scored.
type Row struct {
	PatientID               string    `json:"patientId"`
	SurvivalProbability     float64   `json:"survivalProbability"`
	RiskScore               float64   `json:"riskScore"`
	RiskTier                risk.Tier `json:"riskTier,omitempty"`
	PredictedSurvivalMonths float64   `json:"predictedSurvivalMonths"`
	MedianReached           bool      `json:"medianReached"`
	Error                   string    `json:"error,omitempty"`
}

// OK reports whether the row was scored.
func (r Row) OK() bool { return r.Error == "" }

// Result is a scored upload.
type Result struct {
	FileName          string                       `json:"fileName"`
	TotalPatients     int                          `json:"totalPatients"`
	FailedPatients    int                          `json:"failedPatients"`
	ProcessedAt       time.Time                    `json:"processedAt"`
	Summary           risk.Summary                 `json:"summary"`
	ModelPerformance  map[adapter.ID]adapter.Score `json:"modelPerformance"`
	TopFeatures       []adapter.FeatureImportance  `json:"topFeatures"`
	TopFeatureSource  string                       `json:"topFeatureSource"`
	DuplicatePatients []string                     `json:"duplicatePatientIds,omitempty"`
	Patients          []Row                        `json:"patients"`
}

// Scorer scores tables against a registry.
type Scorer struct {
	registry    *adapter.Registry
	concurrency int
	topN        int
	explainers  []explain.Explainer
	now         func() time.Time
	logger      logger.Logger
}

// NewScorer builds a scorer over registry.
func NewScorer(registry *adapter.Registry, opts ...Option) *Scorer {
	s := &Scorer{
		registry:    registry,
		concurrency: runtime.NumCPU(),
		topN:        explain.DefaultTopN,
		explainers:  []explain.Explainer{explain.Builtin{}, explain.Occlusion{}},
		now:         time.Now,
		logger:      logger.Get().Named("batch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score runs every record through the reference adapter. Row failures are
// reported per row; only a missing id column or cancellation fail the call.
// Rows come back in input order.
func (s *Scorer) Score(ctx context.Context, fileName string, table tabular.Table) (*Result, error) {
	if !table.Has(IDColumn) {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, IDColumn)
	}
	start := time.Now()
	ref := s.registry.Reference()

	rows := make([]Row, len(table.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, rec := range table.Records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = ScoreRecord(ref, i, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		FileName:          fileName,
		TotalPatients:     len(rows),
		ProcessedAt:       s.now().UTC(),
		ModelPerformance:  s.registry.Scores(),
		DuplicatePatients: table.Duplicates(IDColumn),
		Patients:          rows,
	}
	items := make([]risk.Item, 0, len(rows))
	for _, r := range rows {
		if !r.OK() {
			res.FailedPatients++
			continue
		}
		items = append(items, risk.Item{RiskScore: r.RiskScore, PredictedSurvivalMonths: r.PredictedSurvivalMonths})
	}
	res.Summary = risk.Stratify(items)

	ranking := explain.Explain(ctx, ref, features.Defaults(), s.topN, s.explainers...)
	if ranking.Source == explain.SourceFallback {
		metrics.RecordExplainFallback()
		s.logger.Warn(ctx, "feature ranking fell back to static list", logger.Error(ranking.Err))
	}
	res.TopFeatures, res.TopFeatureSource = ranking.Features, ranking.Source

	if len(res.DuplicatePatients) > 0 {
		s.logger.Warn(ctx, "upload contains duplicate patient ids",
			logger.String("file", fileName),
			logger.Int("duplicates", len(res.DuplicatePatients)))
	}
	elapsed := time.Since(start)
	metrics.RecordBatch(len(rows), res.FailedPatients, float64(elapsed.Milliseconds()))
	s.logger.Info(ctx, "batch scored",
		logger.String("file", fileName),
		logger.Int("rows", len(rows)),
		logger.Int("failed", res.FailedPatients),
		logger.Duration("elapsed", elapsed))
	return res, nil
}

// ScoreRecord scores one record with the reference adapter. index is the
// zero-based row position and names patients with a blank id.
func ScoreRecord(ref adapter.Adapter, index int, rec map[string]string) Row {
	row := Row{PatientID: rec[IDColumn]}
	if row.PatientID == "" {
		row.PatientID = "PATIENT-" + strconv.Itoa(index+1)
	}

	p, err := features.DecodeStrings(rec)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		row.Error = err.Error()
		return row
	}

	est, err := ref.Predict(features.Transform(p))
	if err != nil {
		metrics.RecordAdapterError(string(ref.ID()))
		row.Error = fmt.Sprintf("%s: %v", ref.ID(), err)
		return row
	}
	row.RiskScore = ensemble.RiskFromLandmark(est.LandmarkPercent)
	row.SurvivalProbability = 1 - row.RiskScore
	row.RiskTier = risk.TierOf(row.RiskScore)
	row.PredictedSurvivalMonths = est.Median.Months
	row.MedianReached = est.Median.Reached
	return row
}
