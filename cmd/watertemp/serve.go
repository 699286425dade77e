package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/watertemp-etl/internal/adapter/http"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
	"github.com/couchcryptid/watertemp-etl/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh on a schedule and serve health and metrics endpoints",
	Long: `Runs "watertemp run" immediately and then every SCHEDULE_INTERVAL, and serves
/healthz, /readyz, /metrics and POST /runs on HTTP_ADDR. /readyz reports ready
after the first successful run.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, observability.NewMetrics())
	defer a.Close()

	sched := scheduler.New(cfg.ScheduleInterval, a.runner.Refresh, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, a.runner, sched, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()

	logger.Info("shutdown complete")
	return nil
}
