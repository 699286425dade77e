package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
)

// ClimateSource downloads and decodes gridded daily air temperature.
type ClimateSource interface {
	Fetch(ctx context.Context, req domain.ClimateRequest) ([]byte, error)
	Parse(body []byte) (domain.AirTempLookup, error)
}

// AirTempStore keeps raw climate responses and the derived lookups.
type AirTempStore interface {
	WriteDaymetRaw(code string, body []byte) error
	WriteAirTemp(code string, lookup domain.AirTempLookup) error
}

// AirTempFetcher requests climate data for each station in turn and saves a
// per-station date -> air temperature lookup.
type AirTempFetcher struct {
	source   ClimateSource
	store    AirTempStore
	clock    clockwork.Clock
	delay    time.Duration
	lastYear int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewAirTempFetcher creates an AirTempFetcher. delay is waited after every
// request; lastYear caps the requested range.
func NewAirTempFetcher(source ClimateSource, store AirTempStore, clock clockwork.Clock, delay time.Duration, lastYear int, logger *slog.Logger, metrics *observability.Metrics) *AirTempFetcher {
	return &AirTempFetcher{
		source:   source,
		store:    store,
		clock:    clock,
		delay:    delay,
		lastYear: lastYear,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run fetches every station sequentially. Stations whose record starts after
// the last available climate year are skipped without a request. Network and
// parse failures are logged and the station skipped. The run stops early only
// when ctx is cancelled.
func (f *AirTempFetcher) Run(ctx context.Context, rows []domain.StationMetadata) (Result, error) {
	logger := f.logger.With("run_id", RunID(ctx), "mode", ModeAirTemp)
	res := Result{Mode: ModeAirTemp}

	for _, meta := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start, end, ok := domain.ClampYears(meta.RecordStart.Year(), meta.RecordEnd.Year(), f.lastYear)
		if !ok {
			logger.Warn("record starts after last climate year, skipping",
				"station", meta.StationCode, "start_year", start, "last_year", f.lastYear)
			res.Skipped++
			f.metrics.StationsSkipped.WithLabelValues(ModeAirTemp).Inc()
			continue
		}

		n, err := f.fetchStation(ctx, meta, start, end, logger)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			logger.Error("air temperature fetch failed, skipping", "station", meta.StationCode, "error", err)
			res.Failed++
			f.metrics.StationsFailed.WithLabelValues(ModeAirTemp).Inc()
		} else {
			res.Processed++
			res.RecordsWritten += n
			f.metrics.StationsProcessed.WithLabelValues(ModeAirTemp).Inc()
		}

		if !f.wait(ctx) {
			return res, ctx.Err()
		}
	}

	logger.Info("run complete", res.logAttrs()...)
	return res, nil
}

func (f *AirTempFetcher) fetchStation(ctx context.Context, meta domain.StationMetadata, start, end int, logger *slog.Logger) (int, error) {
	req := domain.ClimateRequest{
		Lat:       meta.Latitude,
		Lon:       meta.Longitude,
		StartYear: start,
		EndYear:   end,
	}
	logger.Debug("requesting air temperature", "station", meta.StationCode, "start_year", start, "end_year", end)

	body, err := f.source.Fetch(ctx, req)
	if err != nil {
		return 0, &domain.ProcessingError{Station: meta.StationCode, Err: err}
	}
	if err := f.store.WriteDaymetRaw(meta.StationCode, body); err != nil {
		return 0, &domain.ProcessingError{Station: meta.StationCode, Err: err}
	}

	lookup, err := f.source.Parse(body)
	if err != nil {
		return 0, &domain.ProcessingError{Station: meta.StationCode, Err: err}
	}
	if err := f.store.WriteAirTemp(meta.StationCode, lookup); err != nil {
		return 0, &domain.ProcessingError{Station: meta.StationCode, Err: err}
	}
	return len(lookup), nil
}

// wait pauses between requests. It returns false if ctx is cancelled first.
func (f *AirTempFetcher) wait(ctx context.Context) bool {
	if f.delay <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-f.clock.After(f.delay):
		return true
	}
}
