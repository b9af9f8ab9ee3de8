// Package repository keeps the high-risk worklist and the batch job records.
package repository

import (
	"context"
	"time"

	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/model"
	"github.com/okian/survcast/internal/domain/risk"
)

// Entry is one worklist row.
type Entry struct {
	Rank                    int       `json:"rank"`
	PatientID               string    `json:"patientId"`
	RiskScore               float64   `json:"riskScore"`
	Tier                    risk.Tier `json:"riskTier"`
	PredictedSurvivalMonths float64   `json:"predictedSurvivalMonths"`
	MedianReached           bool      `json:"medianReached"`
	ScoredAt                time.Time `json:"scoredAt"`
}

// Worklist ranks patients by their latest risk score.
type Worklist interface {
	// Record stores a as the patient's latest assessment, replacing any
	// earlier one.
	Record(ctx context.Context, a model.Assessment) error

	// Rank returns the patient's position. Returns ErrNotFound if unknown.
	Rank(ctx context.Context, patientID string) (Entry, error)

	// TopN returns the n highest-risk patients, risk desc then id asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of patients tracked.
	Count(ctx context.Context) int
}

// JobRecord is the externally visible state of a batch job.
type JobRecord struct {
	ID          string         `json:"id"`
	FileName    string         `json:"fileName"`
	State       model.JobState `json:"state"`
	SubmittedAt time.Time      `json:"submittedAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      *batch.Result  `json:"result,omitempty"`
}

// Jobs tracks job lifecycles.
type Jobs interface {
	Create(ctx context.Context, j model.Job) (JobRecord, error)
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, res *batch.Result) error
	Fail(ctx context.Context, id string, reason string) error
	Get(ctx context.Context, id string) (JobRecord, error)
}
