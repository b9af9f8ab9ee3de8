// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/survcast/internal/domain/risk"
)

// Assessment is the latest scored outcome for a patient. It feeds the
// high-risk worklist.
type Assessment struct {
	PatientID               string
	RiskScore               float64
	Tier                    risk.Tier
	PredictedSurvivalMonths float64
	MedianReached           bool
	ScoredAt                time.Time
}

// JobState is the lifecycle position of a batch job.
type JobState string

// Job states.
const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is an uploaded file waiting to be batch scored.
type Job struct {
	ID          string    // uuid
	FileName    string    // picks the reader, e.g. cohort.xlsx
	Fingerprint string    // content hash used for deduplication
	Data        []byte    // raw upload
	SubmittedAt time.Time // accept time
}
