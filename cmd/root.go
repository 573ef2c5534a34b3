// Package cmd implements the nanobook command line interface.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nanobook/nanobook/internal/config"
	"github.com/nanobook/nanobook/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "nanobook",
	Short: "NanoBook - a document question-answering service",
	Long: `NanoBook indexes uploaded documents into a vector collection and answers
natural-language questions grounded in them, with source attribution.

Run "nanobook serve" to start the HTTP API.`,
	SilenceUsage: true,
}

var (
	flagVerbose bool
	flagJSONLog bool
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "emit logs as JSON")
}

// loadConfig reads .env (when present), loads and validates configuration,
// and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	// A missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: flagJSONLog})
	slog.SetDefault(logger)

	return cfg, logger, nil
}
