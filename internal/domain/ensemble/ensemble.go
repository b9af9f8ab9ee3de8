// Package ensemble picks a consensus prediction across survival models and
// derives the patient's risk score.
package ensemble

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/survival"
)

// Sentinel kinds for selection errors.
var (
	ErrNoCandidates     = errors.New("no adapter has both an estimate and a score")
	ErrReferenceMissing = errors.New("reference adapter estimate missing")
)

// Entry is one row of the comparison table.
type Entry struct {
	CIndex          float64         `json:"cIndex"`
	Prediction      survival.Median `json:"prediction"`
	LandmarkPercent float64         `json:"landmarkPercent"`
}

// Result is the ensemble outcome for one patient.
type Result struct {
	Selected  adapter.ID      `json:"selected"`
	Consensus survival.Median `json:"consensus"`
	// SurvivalProbability is the reference adapter's landmark survival in [0,1].
	SurvivalProbability float64                          `json:"survivalProbability"`
	RiskScore           float64                          `json:"riskScore"`
	Comparison          map[adapter.ID]Entry             `json:"comparison"`
	Estimates           map[adapter.ID]survival.Estimate `json:"-"`
}

// Select returns the adapter with the strictly highest score, breaking ties by
// adapter.Priority. The risk score always comes from adapter.Reference,
// whichever adapter wins.
func Select(estimates map[adapter.ID]survival.Estimate, scores map[adapter.ID]adapter.Score) (Result, error) {
	candidates := make([]adapter.ID, 0, len(estimates))
	for id := range estimates {
		if _, ok := scores[id]; ok {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := adapter.Rank(candidates[i]), adapter.Rank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		return candidates[i] < candidates[j]
	})

	winner := candidates[0]
	for _, id := range candidates[1:] {
		if scores[id].CIndex > scores[winner].CIndex {
			winner = id
		}
	}

	ref, ok := estimates[adapter.Reference]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrReferenceMissing, adapter.Reference)
	}
	surv := survival.Clamp01(ref.LandmarkPercent / 100)

	table := make(map[adapter.ID]Entry, len(candidates))
	for _, id := range candidates {
		table[id] = Entry{
			CIndex:          scores[id].CIndex,
			Prediction:      estimates[id].Median,
			LandmarkPercent: estimates[id].LandmarkPercent,
		}
	}

	return Result{
		Selected:            winner,
		Consensus:           estimates[winner].Median,
		SurvivalProbability: surv,
		RiskScore:           RiskFromLandmark(ref.LandmarkPercent),
		Comparison:          table,
		Estimates:           estimates,
	}, nil
}

// RiskFromLandmark is 1 - landmark/100, bounded to [0,1].
func RiskFromLandmark(landmarkPercent float64) float64 {
	return survival.Clamp01(1 - landmarkPercent/100)
}
