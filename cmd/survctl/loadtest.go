package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/internal/loadgen"
)

var (
	loadURL      string
	loadPatients int
	loadWorkers  int
	loadTopN     int
	loadSeed     uint64
	loadTimeout  time.Duration
	loadVerbose  bool
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Post synthetic patients to a running server and verify its worklist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stats, err := loadgen.Run(cmd.Context(), &loadgen.Config{
			BaseURL:  loadURL,
			Patients: loadPatients,
			Workers:  loadWorkers,
			TopN:     loadTopN,
			Timeout:  loadTimeout,
			Seed:     loadSeed,
			Verbose:  loadVerbose,
		})
		if err != nil {
			return eris.Wrap(err, "load test")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "submitted %d, scored %d, failed %d in %s\n",
			stats.Submitted, stats.Successful, stats.Failed, stats.Duration.Round(time.Millisecond))
		for _, t := range risk.Tiers {
			fmt.Fprintf(out, "%-6s %d\n", t, stats.TierCounts[string(t)])
		}
		fmt.Fprintf(out, "worklist verified: %d entries, %d ranks\n", stats.WorklistEntries, stats.RanksChecked)
		return nil
	},
}

func init() {
	f := loadtestCmd.Flags()
	f.StringVar(&loadURL, "url", "http://localhost:9080", "base URL of the server")
	f.IntVar(&loadPatients, "patients", loadgen.DefaultPatients, "number of synthetic patients")
	f.IntVar(&loadWorkers, "workers", runtime.NumCPU()*2, "concurrent workers")
	f.IntVar(&loadTopN, "top", loadgen.DefaultTopN, "worklist entries to verify")
	f.Uint64Var(&loadSeed, "seed", 0, "generator seed (0 picks one)")
	f.DurationVar(&loadTimeout, "timeout", loadgen.DefaultTimeout, "HTTP request timeout")
	f.BoolVar(&loadVerbose, "verbose", false, "log every failed request")
	rootCmd.AddCommand(loadtestCmd)
}
