package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/survcast/internal/adapters/artifact"
	"github.com/okian/survcast/internal/config"
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/survival"
	"github.com/okian/survcast/pkg/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "survctl",
	Short: "Offline tools for the survcast survival engine",
	Long:  "Scores patient files, imports historical cohorts, measures model concordance and load-tests a running server.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		// stdout carries command output; logs go to stderr
		if err := logger.InitWithOptions(logger.WithFormat(cfg.LogFormat), logger.WithWriter(os.Stderr)); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return logger.SetLevelString(cfg.LogLevel)
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRegistry builds the model registry described by the config.
func loadRegistry(c *config.Config) (*adapter.Registry, error) {
	grid, err := survival.NewGrid(c.GridStart, c.GridEnd, c.GridStep)
	if err != nil {
		return nil, err
	}
	return artifact.Load(c.ArtifactPath, grid, c.LandmarkMonth)
}

// readFile reads an input file whole.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
