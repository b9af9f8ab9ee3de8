// Package stats implements the survival statistics the engine delegates:
// the two-group log-rank test, Harrell's concordance index and the Brier
// score.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sentinel kinds for statistics errors.
var (
	ErrInvalidInput      = errors.New("invalid statistics input")
	ErrNoComparablePairs = errors.New("no comparable pairs")
)

// Sample is a set of survival observations.
type Sample struct {
	Durations []float64
	Events    []int
}

func (s Sample) validate(name string) error {
	if len(s.Durations) == 0 || len(s.Durations) != len(s.Events) {
		return fmt.Errorf("%w: %s has %d durations and %d events", ErrInvalidInput, name, len(s.Durations), len(s.Events))
	}
	for i, d := range s.Durations {
		if d < 0 || math.IsNaN(d) {
			return fmt.Errorf("%w: %s duration[%d]=%v", ErrInvalidInput, name, i, d)
		}
		if s.Events[i] != 0 && s.Events[i] != 1 {
			return fmt.Errorf("%w: %s event[%d]=%d", ErrInvalidInput, name, i, s.Events[i])
		}
	}
	return nil
}

// LogRankResult is the outcome of a two-group log-rank test.
type LogRankResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"pValue"`
	ObservedA int     `json:"observedA"`
	ExpectedA float64 `json:"expectedA"`
	ObservedB int     `json:"observedB"`
	ExpectedB float64 `json:"expectedB"`
}

// LogRank tests whether a and b share a survival distribution. The statistic
// is chi-square with one degree of freedom.
func LogRank(a, b Sample) (LogRankResult, error) {
	if err := a.validate("group a"); err != nil {
		return LogRankResult{}, err
	}
	if err := b.validate("group b"); err != nil {
		return LogRankResult{}, err
	}

	type obs struct {
		t     float64
		event bool
		inA   bool
	}
	all := make([]obs, 0, len(a.Durations)+len(b.Durations))
	for i, d := range a.Durations {
		all = append(all, obs{t: d, event: a.Events[i] == 1, inA: true})
	}
	for i, d := range b.Durations {
		all = append(all, obs{t: d, event: b.Events[i] == 1})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].t < all[j].t })

	nA, nB := float64(len(a.Durations)), float64(len(b.Durations))
	var res LogRankResult
	variance := 0.0
	for i := 0; i < len(all); {
		t := all[i].t
		var dA, dB, leftA, leftB float64
		for ; i < len(all) && all[i].t == t; i++ {
			if all[i].inA {
				leftA++
				if all[i].event {
					dA++
				}
			} else {
				leftB++
				if all[i].event {
					dB++
				}
			}
		}
		d, n := dA+dB, nA+nB
		if d > 0 {
			res.ObservedA += int(dA)
			res.ObservedB += int(dB)
			res.ExpectedA += d * nA / n
			res.ExpectedB += d * nB / n
			if n > 1 {
				variance += nA * nB * d * (n - d) / (n * n * (n - 1))
			}
		}
		nA -= leftA
		nB -= leftB
	}

	if variance == 0 {
		res.PValue = 1
		return res, nil
	}
	diff := float64(res.ObservedA) - res.ExpectedA
	res.Statistic = diff * diff / variance
	res.PValue = distuv.ChiSquared{K: 1}.Survival(res.Statistic)
	return res, nil
}

// ConcordanceIndex is Harrell's C for risk scores, where a higher risk should
// mean an earlier event. Tied risks count one half.
func ConcordanceIndex(durations []float64, events []int, risks []float64) (float64, error) {
	s := Sample{Durations: durations, Events: events}
	if err := s.validate("sample"); err != nil {
		return 0, err
	}
	if len(risks) != len(durations) {
		return 0, fmt.Errorf("%w: %d risks for %d subjects", ErrInvalidInput, len(risks), len(durations))
	}

	var concordant, comparable float64
	for i := range durations {
		if events[i] != 1 {
			continue
		}
		for j := range durations {
			if i == j {
				continue
			}
			ok := durations[i] < durations[j] || (durations[i] == durations[j] && events[j] == 0)
			if !ok {
				continue
			}
			comparable++
			switch {
			case risks[i] > risks[j]:
				concordant++
			case risks[i] == risks[j]:
				concordant += 0.5
			}
		}
	}
	if comparable == 0 {
		return 0, ErrNoComparablePairs
	}
	return concordant / comparable, nil
}

// BrierScore is the mean squared error between the predicted event
// probability by t (1 - survivalAt) and whether an event was observed by t.
func BrierScore(durations []float64, events []int, survivalAt []float64, t float64) (float64, error) {
	s := Sample{Durations: durations, Events: events}
	if err := s.validate("sample"); err != nil {
		return 0, err
	}
	if len(survivalAt) != len(durations) {
		return 0, fmt.Errorf("%w: %d predictions for %d subjects", ErrInvalidInput, len(survivalAt), len(durations))
	}
	sq := make([]float64, len(durations))
	for i := range durations {
		outcome := 0.0
		if events[i] == 1 && durations[i] <= t {
			outcome = 1
		}
		diff := (1 - survivalAt[i]) - outcome
		sq[i] = diff * diff
	}
	return stat.Mean(sq, nil), nil
}
