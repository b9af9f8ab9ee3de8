package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/ensemble"
	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/stats"
)

// Outcome columns a concordance file carries next to the patient features.
const (
	durationColumn = "duration_months"
	eventColumn    = "event"
)

var concordanceFile string

var concordanceCmd = &cobra.Command{
	Use:   "concordance",
	Short: "Measure each model's Harrell's C and landmark Brier score against observed outcomes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := loadRegistry(cfg)
		if err != nil {
			return eris.Wrap(err, "load models")
		}
		data, err := readFile(concordanceFile)
		if err != nil {
			return err
		}
		table, err := tabular.Read(filepath.Base(concordanceFile), data)
		if err != nil {
			return eris.Wrap(err, "read outcome file")
		}
		for _, c := range []string{durationColumn, eventColumn} {
			if !table.Has(c) {
				return eris.Errorf("outcome file lacks column %s", c)
			}
		}

		durations := make([]float64, len(table.Records))
		events := make([]int, len(table.Records))
		vectors := make([]features.Vector, len(table.Records))
		for i, rec := range table.Records {
			if durations[i], err = strconv.ParseFloat(rec[durationColumn], 64); err != nil {
				return eris.Wrapf(err, "row %d %s", i+1, durationColumn)
			}
			if events[i], err = strconv.Atoi(rec[eventColumn]); err != nil {
				return eris.Wrapf(err, "row %d %s", i+1, eventColumn)
			}
			p, err := features.DecodeStrings(rec)
			if err == nil {
				err = p.Validate()
			}
			if err != nil {
				return eris.Wrapf(err, "row %d", i+1)
			}
			vectors[i] = features.Transform(p)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-10s %8s %8s %8s\n", "model", "c-index", "stored", "brier")
		for _, a := range reg.All() {
			sc, err := scoreModel(a, reg.Landmark(), vectors, durations, events)
			if err != nil {
				return eris.Wrapf(err, "model %s", a.ID())
			}
			fmt.Fprintf(out, "%-10s %8.4f %8.4f %8.4f\n", a.ID(), sc.cIndex, a.ValidationScore().CIndex, sc.brier)
		}
		return nil
	},
}

type modelScore struct {
	cIndex float64
	brier  float64
}

// scoreModel ranks patients by landmark risk and scores the landmark survival
// probability against events observed by the landmark month.
func scoreModel(a adapter.Adapter, landmark float64, vectors []features.Vector, durations []float64, events []int) (modelScore, error) {
	risks := make([]float64, len(vectors))
	surv := make([]float64, len(vectors))
	for i, v := range vectors {
		est, err := a.Predict(v)
		if err != nil {
			return modelScore{}, err
		}
		risks[i] = ensemble.RiskFromLandmark(est.LandmarkPercent)
		surv[i] = 1 - risks[i]
	}
	c, err := stats.ConcordanceIndex(durations, events, risks)
	if err != nil {
		return modelScore{}, err
	}
	b, err := stats.BrierScore(durations, events, surv, landmark)
	if err != nil {
		return modelScore{}, err
	}
	return modelScore{cIndex: c, brier: b}, nil
}

func init() {
	concordanceCmd.Flags().StringVar(&concordanceFile, "file", "", "path to a patient file with duration_months and event columns (required)")
	_ = concordanceCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(concordanceCmd)
}
