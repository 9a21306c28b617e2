package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/config"
	"github.com/emiliopalmerini/abcsmc/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "abcsmc",
	Short: "Approximate Bayesian Computation with Sequential Monte Carlo",
	Long: `abcsmc runs ABC-SMC model selection and parameter inference on ODE models,
stores every generation in a libsql history database, and exports or serves
the stored analyses.

Configuration is read from ABCSMC_* environment variables; flags override it.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Flags and process-wide state set up before every command.
var (
	dbURL     string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "History database URL (default: $ABCSMC_DATABASE_URL or the XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console, json")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	return err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
