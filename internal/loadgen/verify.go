package loadgen

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/survcast/pkg/logger"
)

// scoreTolerance absorbs the fixed-point rounding of stored risk scores.
const scoreTolerance = 1e-9

// verifyWorklist checks that the worklist is ordered by risk descending
// then patient id, and that entries for our patients carry the risk the
// server returned when they were scored.
func verifyWorklist(ctx context.Context, cfg *Config, c *client, results map[string]Prediction, stats *Stats) error {
	var entries []Entry
	if err := c.getJSON(ctx, "/api/worklist?limit="+strconv.Itoa(cfg.TopN), &entries); err != nil {
		return fmt.Errorf("worklist retrieval failed: %w", err)
	}
	stats.WorklistEntries = len(entries)
	if err := checkOrder(entries); err != nil {
		return err
	}
	for _, e := range entries {
		pred, ok := results[e.PatientID]
		if !ok {
			continue
		}
		if math.Abs(pred.RiskScore-e.RiskScore) > scoreTolerance {
			return fmt.Errorf("patient %s: worklist risk %.6f, predicted %.6f", e.PatientID, e.RiskScore, pred.RiskScore)
		}
	}

	// every entry's rank must agree with the single-patient lookup
	for _, e := range entries {
		var got Entry
		if err := c.getJSON(ctx, rankPath(e.PatientID), &got); err != nil {
			return fmt.Errorf("rank lookup failed: %w", err)
		}
		stats.RanksChecked++
		// a concurrent writer can move the patient; only report it
		if got.Rank != e.Rank {
			logger.Get().Named("loadgen").Warn(ctx, "rank moved during verification",
				logger.String("patient_id", e.PatientID), logger.Int("listed", e.Rank), logger.Int("lookup", got.Rank))
		}
	}
	return nil
}

func checkOrder(entries []Entry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.RiskScore > prev.RiskScore || (e.RiskScore == prev.RiskScore && e.PatientID < prev.PatientID) {
			return fmt.Errorf("worklist not ordered at rank %d: %s (%.6f) after %s (%.6f)",
				e.Rank, e.PatientID, e.RiskScore, prev.PatientID, prev.RiskScore)
		}
	}
	return nil
}
