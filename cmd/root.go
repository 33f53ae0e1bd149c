// Package cmd defines the CLI commands for the admissions executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/config"
	"github.com/JakeFAU/admissions-crawler/internal/logging"
)

// newRootCmd creates the root command and registers the subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "admissions",
		Short: "Ingest and serve national high-school admission results.",
		Long: `admissions crawls the publisher's static admission results site into
one storage unit per year and serves the stored data over a read-only HTTP API.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newIngestCmd(&cfgFile), newServeCmd(&cfgFile))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration into v and builds the process logger.
func bootstrap(v *viper.Viper, cfgFile string) (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWith(v, cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
	}
}
