package features

import "fmt"

// Feature names, in vector order.
const (
	Age               = "age"
	Gender            = "gender"
	TumorStage        = "tumor_stage"
	TumorSize         = "tumor_size"
	LymphNodes        = "lymph_nodes"
	HistologicalGrade = "histological_grade"
	ERStatus          = "er_status"
	PRStatus          = "pr_status"
	HER2Status        = "her2_status"
	TreatmentHistory  = "treatment_history"
	TP53Expression    = "tp53_expression"
	BRCA1Expression   = "brca1_expression"
	MethylationScore  = "methylation_score"
	MirnaProfile      = "mirna_profile"
)

// Spec describes one model input.
type Spec struct {
	Name  string
	Label string
	// Default is imputed when the field is absent or unrecognised.
	Default float64
}

// Schema lists every feature in Vector order.
var Schema = []Spec{
	{Name: Age, Label: "Age", Default: 60},
	{Name: Gender, Label: "Gender", Default: 0},
	{Name: TumorStage, Label: "Tumor Stage", Default: 2},
	{Name: TumorSize, Label: "Tumor Size", Default: 2},
	{Name: LymphNodes, Label: "Lymph Node Status", Default: 1},
	{Name: HistologicalGrade, Label: "Histological Grade", Default: 2},
	{Name: ERStatus, Label: "ER Status", Default: 0},
	{Name: PRStatus, Label: "PR Status", Default: 0},
	{Name: HER2Status, Label: "HER2 Status", Default: 0},
	{Name: TreatmentHistory, Label: "Treatment History", Default: 0},
	{Name: TP53Expression, Label: "TP53 Expression", Default: 2},
	{Name: BRCA1Expression, Label: "BRCA1 Expression", Default: 1.5},
	{Name: MethylationScore, Label: "Methylation Score", Default: 0.5},
	{Name: MirnaProfile, Label: "miRNA Profile", Default: 3},
}

var index = func() map[string]int {
	m := make(map[string]int, len(Schema))
	for i, s := range Schema {
		m[s.Name] = i
	}
	return m
}()

// Index returns the vector position of name.
func Index(name string) (int, error) {
	i, ok := index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	return i, nil
}

// Label returns the display label of name, or name itself when unknown.
func Label(name string) string {
	if i, ok := index[name]; ok {
		return Schema[i].Label
	}
	return name
}

// Indices resolves names to vector positions.
func Indices(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx, err := Index(n)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// Defaults returns a vector holding every default value.
func Defaults() Vector {
	v := make(Vector, len(Schema))
	for i, s := range Schema {
		v[i] = s.Default
	}
	return v
}
