package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/watertemp-etl/internal/observability"
	"github.com/couchcryptid/watertemp-etl/internal/pipeline"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Build the station index from the registry and raw files",
	Long: `Reads the station registry and creates a series file and index entry for
every station with a "{code}_*.csv" raw file. Stations without one are left out.
The existing index is replaced.`,
	Args: cobra.NoArgs,
	RunE: batch(func(ctx context.Context, r *pipeline.Runner) error {
		_, err := r.Convert(ctx)
		return err
	}),
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh existing index entries from raw files",
	Long: `Recomputes the series of every indexed station that has a raw file, copies
the raw file to the public raw directory and updates n, start, end and
csv_filename. Stations without a raw file are kept unchanged.`,
	Args: cobra.NoArgs,
	RunE: batch(func(ctx context.Context, r *pipeline.Runner) error {
		_, err := r.Update(ctx)
		return err
	}),
}

var airtempCmd = &cobra.Command{
	Use:   "airtemp",
	Short: "Download Daymet air temperature for every registry station",
	Args:  cobra.NoArgs,
	RunE: batch(func(ctx context.Context, r *pipeline.Runner) error {
		_, err := r.AirTemp(ctx)
		return err
	}),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch air temperature, then update the index",
	Args:  cobra.NoArgs,
	RunE: batch(func(ctx context.Context, r *pipeline.Runner) error {
		return r.Refresh(ctx)
	}),
}

func init() {
	rootCmd.AddCommand(convertCmd, updateCmd, airtempCmd, runCmd)
}

// batch adapts a one-shot runner call to a cobra RunE. SIGINT and SIGTERM
// cancel the run between stations.
func batch(fn func(context.Context, *pipeline.Runner) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg, observability.NewMetrics())
		defer a.Close()

		return fn(ctx, a.runner)
	}
}
