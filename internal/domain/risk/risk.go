// Package risk buckets risk scores into tiers and summarises a cohort.
package risk

// Tier is a discrete risk level.
type Tier string

// Tiers, ordered from least to most severe.
const (
	Low    Tier = "low"
	Medium Tier = "medium"
	High   Tier = "high"
)

// Tier boundaries. Medium includes both.
const (
	LowUpper    = 0.3
	MediumUpper = 0.6
)

// Tiers lists every tier, least severe first.
var Tiers = []Tier{Low, Medium, High}

// TierOf places score in exactly one tier.
func TierOf(score float64) Tier {
	switch {
	case score < LowUpper:
		return Low
	case score <= MediumUpper:
		return Medium
	default:
		return High
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == Low || t == Medium || t == High
}

// Item is one scored patient.
type Item struct {
	RiskScore               float64
	PredictedSurvivalMonths float64
}

// Summary is the stratification of a set of patients.
type Summary struct {
	Low                   int     `json:"lowRiskPatients"`
	Medium                int     `json:"mediumRiskPatients"`
	High                  int     `json:"highRiskPatients"`
	MeanPredictedSurvival float64 `json:"averageSurvivalMonths"`
}

// Total is the number of stratified patients.
func (s Summary) Total() int { return s.Low + s.Medium + s.High }

// Stratify counts items per tier and averages their predicted survival.
// An empty input yields a zero Summary.
func Stratify(items []Item) Summary {
	var s Summary
	if len(items) == 0 {
		return s
	}
	total := 0.0
	for _, it := range items {
		switch TierOf(it.RiskScore) {
		case Low:
			s.Low++
		case Medium:
			s.Medium++
		case High:
			s.High++
		}
		total += it.PredictedSurvivalMonths
	}
	s.MeanPredictedSurvival = total / float64(len(items))
	return s
}
