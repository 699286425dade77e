package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
)

// MetadataLoader reads the station registry.
type MetadataLoader func() ([]domain.StationMetadata, error)

// Runner executes complete batch runs: it loads inputs, drives the
// reconciler or fetcher, and records run metrics. Only one run executes at a
// time.
type Runner struct {
	reconciler   *Reconciler
	fetcher      *AirTempFetcher
	loadMetadata MetadataLoader
	store        Store
	metricsFile  string
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu    sync.Mutex
	ready atomic.Bool
}

// NewRunner creates a Runner. metricsFile, when set, receives a textfile
// export of all metrics after each run.
func NewRunner(reconciler *Reconciler, fetcher *AirTempFetcher, loadMetadata MetadataLoader, store Store, metricsFile string, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		reconciler:   reconciler,
		fetcher:      fetcher,
		loadMetadata: loadMetadata,
		store:        store,
		metricsFile:  metricsFile,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// Convert rebuilds the station index from the registry and raw files.
func (r *Runner) Convert(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runLocked(ctx, ModeBuild, r.convert)
}

// Update refreshes the existing station index from raw files.
func (r *Runner) Update(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runLocked(ctx, ModeUpdate, r.update)
}

// AirTemp fetches climate lookups for every registry station.
func (r *Runner) AirTemp(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runLocked(ctx, ModeAirTemp, r.airTemp)
}

// Refresh fetches air temperature and then updates the index so the new
// lookups are merged into the series files. An air temperature failure is
// logged and the update still runs. Both steps run under one hold of the run
// lock, so no other run can interleave between them.
func (r *Runner) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.runLocked(ctx, ModeAirTemp, r.airTemp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("air temperature run failed, updating with existing lookups", "error", err)
	}
	_, err := r.runLocked(ctx, ModeUpdate, r.update)
	return err
}

func (r *Runner) convert(ctx context.Context) (Result, error) {
	rows, err := r.loadMetadata()
	if err != nil {
		return Result{}, fmt.Errorf("load metadata: %w", err)
	}
	return r.reconciler.Build(ctx, rows)
}

func (r *Runner) update(ctx context.Context) (Result, error) {
	prior, err := r.store.ReadStations()
	if err != nil {
		return Result{}, err
	}
	return r.reconciler.Update(ctx, prior)
}

func (r *Runner) airTemp(ctx context.Context) (Result, error) {
	rows, err := r.loadMetadata()
	if err != nil {
		return Result{}, fmt.Errorf("load metadata: %w", err)
	}
	return r.fetcher.Run(ctx, rows)
}

// runLocked executes one run with its ID, logging and metrics. r.mu must be
// held.
func (r *Runner) runLocked(ctx context.Context, mode string, fn func(context.Context) (Result, error)) (Result, error) {
	runID := uuid.NewString()
	ctx = WithRunID(ctx, runID)
	logger := r.logger.With("run_id", runID, "mode", mode)
	logger.Info("run started")

	r.metrics.RunInProgress.Set(1)
	start := r.clock.Now()
	res, err := fn(ctx)
	r.metrics.RunDuration.WithLabelValues(mode).Observe(r.clock.Since(start).Seconds())
	r.metrics.RunInProgress.Set(0)

	if err != nil {
		logger.Error("run failed", "error", err)
	} else {
		r.metrics.LastSuccess.WithLabelValues(mode).Set(float64(r.clock.Now().Unix()))
		r.ready.Store(true)
	}

	if r.metricsFile != "" {
		if werr := r.metrics.WriteTextfile(r.metricsFile); werr != nil {
			logger.Warn("metrics export failed", "error", werr, "file", r.metricsFile)
		}
	}
	return res, err
}
