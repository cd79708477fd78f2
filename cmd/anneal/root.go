package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/annealer/internal/config"
	"github.com/copyleftdev/annealer/internal/logging"
)

// envConfig supplies the flag defaults. A malformed environment falls back to
// the built-in defaults and is reported when a command runs.
var envConfig, envErr = loadConfig()

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Defaults(), err
	}
	return cfg, nil
}

var (
	logLevel  string
	logFormat string
	logger    *logging.Logger
	zapLogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "anneal",
	Short: "Box-constrained minimization with adaptive simulated annealing",
	Long: `anneal minimizes benchmark objectives over a bounding box using adaptive-step
simulated annealing or Nelder-Mead, optionally across several independent islands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return fmt.Errorf("invalid environment: %w", envErr)
		}
		l, err := logging.NewLogger(&logging.Config{
			Level:  logLevel,
			Format: logFormat,
			Output: "stderr",
		})
		if err != nil {
			return err
		}
		logger = l
		zapLogger = logging.NewZapLogger(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envConfig.Logging.Level, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envConfig.Logging.Format, "Log format (json, text)")
}
