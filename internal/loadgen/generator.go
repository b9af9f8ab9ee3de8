package loadgen

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	stages     = []string{"I", "II", "III", "IV"}
	genders    = []string{"female", "male"}
	statuses   = []string{"negative", "positive"}
	treatments = []string{"none", "surgery", "chemotherapy", "radiation", "combination"}
)

// Generate builds n synthetic patients. Ids carry a per-run prefix so
// repeated runs against one server do not overwrite each other.
func Generate(n int, seed uint64) []Patient {
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	prefix := "LOAD-" + strings.ToUpper(uuid.NewString()[:8]) + "-"
	out := make([]Patient, n)
	for i := range out {
		out[i] = generatePatient(rng, prefix+strconv.Itoa(i+1))
	}
	return out
}

func generatePatient(rng *rand.Rand, id string) Patient {
	pick := func(xs []string) string { return xs[rng.IntN(len(xs))] }
	// stage drives the other clinical values so tiers come out mixed
	stage := rng.IntN(len(stages))
	return Patient{
		"patientId":         id,
		"age":               round1(35 + rng.Float64()*50),
		"gender":            pick(genders),
		"tumorStage":        stages[stage],
		"tumorSize":         round1(0.5 + float64(stage)*1.5 + rng.Float64()*2),
		"lymphNodes":        float64(rng.IntN(2 + stage*4)),
		"histologicalGrade": float64(1 + rng.IntN(3)),
		"erStatus":          pick(statuses),
		"prStatus":          pick(statuses),
		"her2Status":        pick(statuses),
		"treatmentHistory":  pick(treatments),
		"tp53Expression":    round1(rng.Float64() * 10),
		"brca1Expression":   round1(rng.Float64() * 10),
		"methylationScore":  round1(rng.Float64()),
		"mirnaProfile":      round1(rng.Float64()),
	}
}

func round1(x float64) float64 {
	return float64(int(x*10+0.5)) / 10
}
