// Package cli implements the benchflow command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/benchflow/benchflow/pkg/config"
	"github.com/benchflow/benchflow/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "benchflow",
	Short: "Benchflow - workflow template execution and result ranking",
	Long: `Benchflow resolves declarative workflow templates, sequences their
steps against the local executor, ranks run results on a leaderboard, and
aggregates completed run cohorts through post-processing workflows.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to engine configuration file (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig resolves the engine configuration for a command invocation.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	name := cfg.Logging.Level
	if logLevel != "" {
		name = logLevel
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewWithConfig(logger.Config{Level: level})
	return cfg, log, nil
}
