// Package features turns raw patient records into the fixed-order numeric
// vectors the survival models consume.
package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Patient is a raw patient record. Numeric fields are nil when absent.
type Patient struct {
	ID                string   `mapstructure:"patientid" json:"patientId,omitempty"`
	Age               *float64 `mapstructure:"age" json:"age,omitempty"`
	Gender            string   `mapstructure:"gender" json:"gender,omitempty"`
	TumorStage        string   `mapstructure:"tumorstage" json:"tumorStage,omitempty"`
	TumorSize         *float64 `mapstructure:"tumorsize" json:"tumorSize,omitempty"`
	LymphNodes        *float64 `mapstructure:"lymphnodes" json:"lymphNodes,omitempty"`
	HistologicalGrade *float64 `mapstructure:"histologicalgrade" json:"histologicalGrade,omitempty"`
	ERStatus          string   `mapstructure:"erstatus" json:"erStatus,omitempty"`
	PRStatus          string   `mapstructure:"prstatus" json:"prStatus,omitempty"`
	HER2Status        string   `mapstructure:"her2status" json:"her2Status,omitempty"`
	TreatmentHistory  string   `mapstructure:"treatmenthistory" json:"treatmentHistory,omitempty"`
	TP53Expression    *float64 `mapstructure:"tp53expression" json:"tp53Expression,omitempty"`
	BRCA1Expression   *float64 `mapstructure:"brca1expression" json:"brca1Expression,omitempty"`
	MethylationScore  *float64 `mapstructure:"methylationscore" json:"methylationScore,omitempty"`
	MirnaProfile      *float64 `mapstructure:"mirnaprofile" json:"mirnaProfile,omitempty"`
}

// Decode builds a Patient from a loosely typed record. Keys may be camelCase
// or snake_case; numbers may arrive as strings. Empty values count as absent.
func Decode(record map[string]interface{}) (Patient, error) {
	clean := make(map[string]interface{}, len(record))
	for k, v := range record {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v = s
		}
		clean[normalizeKey(k)] = v
	}

	var p Patient
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Patient{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := dec.Decode(clean); err != nil {
		return Patient{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	for _, f := range p.numerics() {
		if *f != nil && (math.IsNaN(**f) || math.IsInf(**f, 0)) {
			*f = nil
		}
	}
	return p, nil
}

// numerics lists the optional numeric fields. Strings such as "NaN" or "Inf"
// parse as floats, so Decode treats non-finite values as absent.
func (p *Patient) numerics() []**float64 {
	return []**float64{
		&p.Age, &p.TumorSize, &p.LymphNodes, &p.HistologicalGrade,
		&p.TP53Expression, &p.BRCA1Expression, &p.MethylationScore, &p.MirnaProfile,
	}
}

// DecodeStrings is Decode for string-valued rows such as CSV records.
func DecodeStrings(record map[string]string) (Patient, error) {
	m := make(map[string]interface{}, len(record))
	for k, v := range record {
		m[k] = v
	}
	return Decode(m)
}

func normalizeKey(k string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(k)))
}

// Validate checks ranges the models were trained on.
func (p Patient) Validate() error {
	for _, f := range p.numerics() {
		if *f != nil && (math.IsNaN(**f) || math.IsInf(**f, 0)) {
			return fmt.Errorf("%w: non-finite value %v", ErrInvalidField, **f)
		}
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 120) {
		return fmt.Errorf("%w: age %v outside 0..120", ErrInvalidField, *p.Age)
	}
	for name, v := range map[string]*float64{
		TumorSize:         p.TumorSize,
		LymphNodes:        p.LymphNodes,
		HistologicalGrade: p.HistologicalGrade,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s %v is negative", ErrInvalidField, name, *v)
		}
	}
	return nil
}
