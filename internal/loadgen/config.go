// Package loadgen drives a running survcast server with synthetic patients
// and checks that the high-risk worklist it builds is consistent.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Patients int           // Number of synthetic patients to submit
	Workers  int           // Number of concurrent workers
	TopN     int           // Worklist entries to fetch and verify
	Timeout  time.Duration // HTTP request timeout
	Seed     uint64        // Generator seed; equal seeds give equal cohorts
	Verbose  bool          // Log every failed request
}

// Patient is a synthetic record posted to /api/predict.
type Patient map[string]interface{}

// ID returns the patient id of p.
func (p Patient) ID() string {
	id, _ := p["patientId"].(string)
	return id
}

// Prediction is the part of the predict response the run checks.
type Prediction struct {
	PatientID string  `json:"patientId"`
	RiskScore float64 `json:"riskScore"`
	RiskTier  string  `json:"riskTier"`
}

// Entry is a worklist entry.
type Entry struct {
	Rank      int     `json:"rank"`
	PatientID string  `json:"patientId"`
	RiskScore float64 `json:"riskScore"`
	RiskTier  string  `json:"riskTier"`
}

// Stats holds run statistics.
type Stats struct {
	Generated       int
	Submitted       int
	Successful      int
	Failed          int
	TierCounts      map[string]int
	WorklistEntries int
	RanksChecked    int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
