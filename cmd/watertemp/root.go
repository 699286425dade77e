package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/watertemp-etl/internal/config"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
)

var (
	envFile string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "watertemp",
	Short: "Build and refresh the watershed water temperature dataset",
	Long: `watertemp turns raw station logger exports into the JSON files served by the
water temperature explorer. It aggregates each station's series by day, merges
Daymet air temperature and keeps the station index in step with the raw files.

Settings are read from the environment; a .env file is loaded first if present.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

// setup loads the .env file and configuration and builds the logger shared
// by every subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = c
	logger = observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	return nil
}
