package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/batch"
)

var (
	batchFile string
	batchOut  string
)

// batchCSVHeader is the column order of CSV batch output.
var batchCSVHeader = []string{
	"patient_id", "survival_probability", "risk_score", "risk_tier",
	"predicted_survival_months", "median_reached", "error",
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score a CSV or XLSX patient file offline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg, err := loadRegistry(cfg)
		if err != nil {
			return eris.Wrap(err, "load models")
		}
		data, err := readFile(batchFile)
		if err != nil {
			return err
		}
		name := filepath.Base(batchFile)
		table, err := tabular.Read(name, data)
		if err != nil {
			return eris.Wrap(err, "read batch file")
		}
		scorer := batch.NewScorer(reg,
			batch.WithConcurrency(cfg.BatchConcurrency),
			batch.WithTopN(cfg.ExplainTopN),
		)
		res, err := scorer.Score(ctx, name, table)
		if err != nil {
			return eris.Wrap(err, "score")
		}

		out := cmd.OutOrStdout()
		if batchOut != "" {
			f, err := os.Create(batchOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", batchOut)
			}
			defer f.Close()
			out = f
		}
		if strings.EqualFold(filepath.Ext(batchOut), ".csv") {
			return writeBatchCSV(out, res)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func writeBatchCSV(w io.Writer, res *batch.Result) error {
	rows := make([][]string, len(res.Patients))
	for i, p := range res.Patients {
		rows[i] = []string{
			p.PatientID,
			strconv.FormatFloat(p.SurvivalProbability, 'f', 4, 64),
			strconv.FormatFloat(p.RiskScore, 'f', 4, 64),
			string(p.RiskTier),
			strconv.FormatFloat(p.PredictedSurvivalMonths, 'f', 1, 64),
			strconv.FormatBool(p.MedianReached),
			p.Error,
		}
	}
	return tabular.WriteCSV(w, batchCSVHeader, rows)
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to a .csv or .xlsx file with a patient_id column (required)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "output path; .csv writes a table, anything else JSON (default stdout)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
