// Package cmd implements the CLI commands for exportd.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freecut/exportd/internal/config"
	"github.com/freecut/exportd/internal/observability"
	"github.com/freecut/exportd/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "exportd",
	Short:   "Frame-streaming video export daemon",
	Version: version.Short(),
	Long: `exportd is an HTTP daemon that turns streams of raw RGBA frames into
encoded video files.

A client creates an export job with the output geometry and frame count,
submits frames individually (in any order), optionally attaches an audio
track, and finalizes the job. exportd feeds frames to a long-lived ffmpeg
process in strict index order and muxes the audio in a second pass.

Configuration comes from a YAML file, environment variables prefixed with
EXPORTD_, and CLI flags, in increasing priority.

Example:
  EXPORTD_SERVER_PORT=9100 exportd serve`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// These flags are not bound to viper; loadConfig applies them only when
	// explicitly set, preserving flag > env > config > default priority.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/exportd)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	return cfg, nil
}

// initLogging sets up a default logger from the CLI flags so that early
// failures are logged sensibly. Serve replaces it once config is loaded.
func initLogging() error {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	format, _ := rootCmd.PersistentFlags().GetString("log-format")

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logger := observability.NewLoggerWithWriter(config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}, os.Stderr)
	observability.SetDefault(logger)

	return nil
}
