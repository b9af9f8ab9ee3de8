package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/okian/survcast/internal/adapters/cohort"
	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/pkg/logger"
)

var cohortFile string

var cohortCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Manage stored historical cohorts",
}

var cohortImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Append a cohort file to the configured store",
	Long:  "Reads patient_id, risk_group, duration_months and event columns and appends them. Restart the server to refit the tier curves.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.CohortDriver == cohort.DriverNone {
			return eris.New("cohort store is disabled (SURVCAST_COHORT_DRIVER=none)")
		}
		data, err := readFile(cohortFile)
		if err != nil {
			return err
		}
		table, err := tabular.Read(filepath.Base(cohortFile), data)
		if err != nil {
			return eris.Wrap(err, "read cohort file")
		}
		records, err := cohort.ParseRecords(table)
		if err != nil {
			return eris.Wrap(err, "parse cohort file")
		}

		store, err := cohort.Open(ctx, cfg.CohortDriver, cfg.CohortDSN)
		if err != nil {
			return eris.Wrap(err, "open cohort store")
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate cohort store")
		}
		n, err := store.Import(ctx, records)
		if err != nil {
			return eris.Wrap(err, "import cohort")
		}
		counts, err := store.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "count cohort")
		}

		logger.Get().Info(ctx, "cohort import complete",
			logger.Int("imported", int(n)),
			logger.String("file", cohortFile))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imported %d records\n", n)
		for _, t := range risk.Tiers {
			fmt.Fprintf(out, "%-6s %d\n", t, counts[t])
		}
		return nil
	},
}

func init() {
	cohortImportCmd.Flags().StringVar(&cohortFile, "file", "", "path to a .csv or .xlsx cohort file (required)")
	_ = cohortImportCmd.MarkFlagRequired("file")
	cohortCmd.AddCommand(cohortImportCmd)
	rootCmd.AddCommand(cohortCmd)
}
