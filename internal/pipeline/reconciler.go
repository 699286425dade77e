package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
)

// Run modes, used as the "mode" metric label and in published events.
const (
	ModeBuild   = "build"
	ModeUpdate  = "update"
	ModeAirTemp = "airtemp"
)

// SeriesReader parses one raw station file.
type SeriesReader interface {
	ReadFile(station, path string) (domain.RawSeries, error)
}

// FileFinder locates the raw file for a station code. It returns the chosen
// path and the number of candidates, or domain.ErrNoMatchingFile.
type FileFinder interface {
	Find(code string) (path string, candidates int, err error)
}

// RawArchiver copies a matched raw file into the published tree.
type RawArchiver interface {
	Archive(path string) (string, error)
}

// Store persists the station index, per-station series and site config.
type Store interface {
	ReadStations() ([]domain.StationRecord, error)
	WriteStations(records []domain.StationRecord) error
	WriteSeries(filename string, days []domain.DailyAggregate) error
	WriteSiteConfig(cfg domain.SiteConfig) error
}

// AirTempSource returns a station's air temperature lookup, or nil when the
// station has none.
type AirTempSource interface {
	ReadAirTemp(code string) (domain.AirTempLookup, error)
}

// Publisher announces rewritten stations to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events []domain.StationEvent) error
}

// Deps are the collaborators of a Reconciler. Publisher may be nil.
type Deps struct {
	Reader       SeriesReader
	BuildFinder  FileFinder
	UpdateFinder FileFinder
	Archiver     RawArchiver
	Store        Store
	AirTemp      AirTempSource
	Publisher    Publisher
}

// Settings are the static values stamped into outputs.
type Settings struct {
	Provider       domain.Provider
	DaymetLastYear int
}

// Result summarizes one reconciler or fetcher run.
type Result struct {
	Mode           string
	Processed      int
	Skipped        int
	Failed         int
	RecordsWritten int
	Records        []domain.StationRecord
}

func (r Result) logAttrs() []any {
	return []any{
		"mode", r.Mode,
		"stations_processed", r.Processed,
		"stations_skipped", r.Skipped,
		"stations_failed", r.Failed,
		"records_written", r.RecordsWritten,
	}
}

// Reconciler turns raw station files into per-station series files and keeps
// the station index in step with them.
type Reconciler struct {
	deps     Deps
	settings Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewReconciler creates a Reconciler.
func NewReconciler(deps Deps, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		deps:     deps,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
	}
}

// Build creates the station index from scratch. Every registry row with a
// matching "{code}_*.csv" file gets a series file and an index entry; rows
// without one are dropped. Per-station failures are logged and the station
// is dropped. The index and site config are written once at the end.
func (r *Reconciler) Build(ctx context.Context, rows []domain.StationMetadata) (Result, error) {
	runID := RunID(ctx)
	logger := r.logger.With("run_id", runID, "mode", ModeBuild)
	res := Result{Mode: ModeBuild, Records: make([]domain.StationRecord, 0, len(rows))}
	var events []domain.StationEvent

	for _, meta := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec, n, err := r.buildStation(meta, logger)
		switch {
		case errors.Is(err, domain.ErrNoMatchingFile):
			logger.Info("no raw file for station, dropping", "station", meta.StationCode)
			res.Skipped++
			r.metrics.StationsSkipped.WithLabelValues(ModeBuild).Inc()
			continue
		case err != nil:
			logger.Error("station failed, dropping", "station", meta.StationCode, "error", err)
			res.Failed++
			r.metrics.StationsFailed.WithLabelValues(ModeBuild).Inc()
			continue
		}

		res.Records = append(res.Records, rec)
		res.Processed++
		res.RecordsWritten += n
		r.metrics.StationsProcessed.WithLabelValues(ModeBuild).Inc()
		events = append(events, domain.NewStationEvent(runID, ModeBuild, rec))
	}

	if err := r.finish(ctx, &res, events, logger); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Reconciler) buildStation(meta domain.StationMetadata, logger *slog.Logger) (domain.StationRecord, int, error) {
	path, candidates, err := r.deps.BuildFinder.Find(meta.StationCode)
	if err != nil {
		return domain.StationRecord{}, 0, err
	}
	warnCandidates(logger, meta.StationCode, path, candidates)

	days, err := r.series(meta.StationCode, path, logger)
	if err != nil {
		return domain.StationRecord{}, 0, err
	}

	rec := domain.NewStationRecord(meta, r.settings.Provider, domain.SeriesFilename(path))
	rec.N = len(days)

	if err := r.deps.Store.WriteSeries(rec.Filename, days); err != nil {
		return domain.StationRecord{}, 0, &domain.ProcessingError{Station: meta.StationCode, Err: err}
	}
	logger.Debug("station built", "station", meta.StationCode, "file", rec.Filename, "days", len(days))
	return rec, len(days), nil
}

// Update refreshes existing index entries in place. A station whose raw file
// is found has the file copied to the public raw directory, its series
// recomputed and n, start, end and csv_filename overwritten. A station
// without a raw file, or one that fails, keeps its previous entry unchanged.
// The index and site config are written once at the end.
func (r *Reconciler) Update(ctx context.Context, prior []domain.StationRecord) (Result, error) {
	runID := RunID(ctx)
	logger := r.logger.With("run_id", runID, "mode", ModeUpdate)
	res := Result{Mode: ModeUpdate, Records: make([]domain.StationRecord, len(prior))}
	copy(res.Records, prior)
	var events []domain.StationEvent

	for i, rec := range prior {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		updated, n, err := r.updateStation(rec, logger)
		switch {
		case errors.Is(err, domain.ErrNoMatchingFile):
			logger.Info("no raw file for station, keeping entry", "station", rec.StationCode)
			res.Skipped++
			r.metrics.StationsSkipped.WithLabelValues(ModeUpdate).Inc()
			continue
		case err != nil:
			logger.Error("station failed, keeping previous entry", "station", rec.StationCode, "error", err)
			res.Failed++
			r.metrics.StationsFailed.WithLabelValues(ModeUpdate).Inc()
			continue
		}

		res.Records[i] = updated
		res.Processed++
		res.RecordsWritten += n
		r.metrics.StationsProcessed.WithLabelValues(ModeUpdate).Inc()
		events = append(events, domain.NewStationEvent(runID, ModeUpdate, updated))
	}

	if err := r.finish(ctx, &res, events, logger); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Reconciler) updateStation(rec domain.StationRecord, logger *slog.Logger) (domain.StationRecord, int, error) {
	path, candidates, err := r.deps.UpdateFinder.Find(rec.StationCode)
	if err != nil {
		return rec, 0, err
	}
	warnCandidates(logger, rec.StationCode, path, candidates)

	if _, err := r.deps.Archiver.Archive(path); err != nil {
		return rec, 0, &domain.ProcessingError{Station: rec.StationCode, Err: err}
	}

	days, err := r.series(rec.StationCode, path, logger)
	if err != nil {
		return rec, 0, err
	}

	updated := rec.ApplySeries(days, filepath.Base(path))
	if updated.Filename == "" {
		updated.Filename = domain.SeriesFilename(path)
	}
	if err := r.deps.Store.WriteSeries(updated.Filename, days); err != nil {
		return rec, 0, &domain.ProcessingError{Station: rec.StationCode, Err: err}
	}
	logger.Debug("station updated", "station", rec.StationCode, "file", updated.Filename, "days", len(days))
	return updated, len(days), nil
}

// series reads, aggregates and merges air temperature for one raw file.
func (r *Reconciler) series(code, path string, logger *slog.Logger) ([]domain.DailyAggregate, error) {
	raw, err := r.deps.Reader.ReadFile(code, path)
	if err != nil {
		return nil, err
	}
	if raw.Coerced > 0 {
		r.metrics.CoercionWarnings.Add(float64(raw.Coerced))
		logger.Debug("non-numeric temperatures read as missing", "station", code, "file", path, "count", raw.Coerced)
	}

	days := domain.AggregateDaily(raw.Observations)

	lookup, err := r.deps.AirTemp.ReadAirTemp(code)
	if err != nil {
		logger.Warn("air temperature unavailable, leaving airtemp_c empty", "station", code, "error", err)
		lookup = nil
	}
	return domain.MergeAirTemp(days, lookup), nil
}

// finish writes the index and site config, publishes events and logs the
// run counts.
func (r *Reconciler) finish(ctx context.Context, res *Result, events []domain.StationEvent, logger *slog.Logger) error {
	if err := r.deps.Store.WriteStations(res.Records); err != nil {
		return fmt.Errorf("write station index: %w", err)
	}
	if err := r.deps.Store.WriteSiteConfig(domain.NewSiteConfig(r.settings.DaymetLastYear)); err != nil {
		return fmt.Errorf("write site config: %w", err)
	}
	r.metrics.RecordsWritten.Add(float64(res.RecordsWritten))

	if r.deps.Publisher != nil && len(events) > 0 {
		if err := r.deps.Publisher.Publish(ctx, events); err != nil {
			logger.Warn("publish station events failed", "error", err, "count", len(events))
		}
	}

	logger.Info("run complete", res.logAttrs()...)
	return nil
}

func warnCandidates(logger *slog.Logger, code, chosen string, candidates int) {
	if candidates > 1 {
		logger.Warn("multiple raw files match station, using first",
			"station", code, "file", chosen, "candidates", candidates)
	}
}
