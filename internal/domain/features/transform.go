package features

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Vector is a numeric feature vector aligned with Schema.
type Vector []float64

// With returns a copy of v with the feature at i replaced.
func (v Vector) With(i int, value float64) Vector {
	out := make(Vector, len(v))
	copy(out, v)
	out[i] = value
	return out
}

// Project picks the given positions, in order.
func (v Vector) Project(idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

var (
	genders = map[string]float64{"female": 0, "f": 0, "male": 1, "m": 1}

	statuses = map[string]float64{
		"negative": 0, "neg": 0, "-": 0,
		"positive": 1, "pos": 1, "+": 1,
	}

	stages = map[string]float64{"i": 1, "ii": 2, "iii": 3, "iv": 4}

	treatments = map[string]float64{
		"none":         0,
		"surgery":      1,
		"chemotherapy": 2,
		"radiation":    3,
		"combination":  4,
	}
)

// Transform encodes a patient. It is deterministic and never fails: absent or
// unrecognised values fall back to the schema default.
func Transform(p Patient) Vector {
	v := Defaults()
	fold := cases.Fold()

	setNum := func(name string, val *float64) {
		if val != nil {
			v[index[name]] = *val
		}
	}
	setCat := func(name, raw string, table map[string]float64, limit float64) {
		key := strings.TrimSpace(fold.String(raw))
		if key == "" {
			return
		}
		if n, ok := table[key]; ok {
			v[index[name]] = n
			return
		}
		if n, err := strconv.ParseFloat(key, 64); err == nil && n >= 0 && n <= limit {
			v[index[name]] = n
		}
	}

	setNum(Age, p.Age)
	setCat(Gender, p.Gender, genders, 1)
	setCat(TumorStage, strings.TrimPrefix(strings.TrimSpace(fold.String(p.TumorStage)), "stage "), stages, 4)
	setNum(TumorSize, p.TumorSize)
	setNum(LymphNodes, p.LymphNodes)
	setNum(HistologicalGrade, p.HistologicalGrade)
	setCat(ERStatus, p.ERStatus, statuses, 1)
	setCat(PRStatus, p.PRStatus, statuses, 1)
	setCat(HER2Status, p.HER2Status, statuses, 1)
	setCat(TreatmentHistory, p.TreatmentHistory, treatments, 4)
	setNum(TP53Expression, p.TP53Expression)
	setNum(BRCA1Expression, p.BRCA1Expression)
	setNum(MethylationScore, p.MethylationScore)
	setNum(MirnaProfile, p.MirnaProfile)
	return v
}
