package main

import (
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/watertemp-etl/internal/adapter/daymet"
	"github.com/couchcryptid/watertemp-etl/internal/adapter/files"
	kafkaadapter "github.com/couchcryptid/watertemp-etl/internal/adapter/kafka"
	"github.com/couchcryptid/watertemp-etl/internal/adapter/rawcsv"
	"github.com/couchcryptid/watertemp-etl/internal/adapter/registry"
	"github.com/couchcryptid/watertemp-etl/internal/config"
	"github.com/couchcryptid/watertemp-etl/internal/domain"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
	"github.com/couchcryptid/watertemp-etl/internal/pipeline"
)

// app holds the wired pipeline and anything that must be closed on exit.
type app struct {
	runner    *pipeline.Runner
	publisher *kafkaadapter.Publisher
}

func newApp(cfg *config.Config, metrics *observability.Metrics) *app {
	store := registry.NewStore(cfg.DataDir, cfg.SeriesDir, cfg.DaymetDir)

	reader := rawcsv.Reader{}
	if cols, ok := cfg.SeriesColumns(); ok {
		reader.Columns = cols
	}

	var updateFinder pipeline.FileFinder = files.SubstringFinder{Dir: cfg.RawDir}
	if cfg.MatchStrategy == config.MatchPrefix {
		updateFinder = files.PrefixFinder{Dir: cfg.RawDir}
	}

	a := &app{}
	deps := pipeline.Deps{
		Reader:       reader,
		BuildFinder:  files.PrefixFinder{Dir: cfg.RawDir},
		UpdateFinder: updateFinder,
		Archiver:     files.Archiver{Dir: cfg.PublicRawDir},
		Store:        store,
		AirTemp:      store,
	}
	if cfg.KafkaEnabled {
		a.publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		deps.Publisher = a.publisher
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	reconciler := pipeline.NewReconciler(deps, pipeline.Settings{
		Provider:       cfg.Provider,
		DaymetLastYear: cfg.DaymetLastYear,
	}, logger, metrics)

	clock := clockwork.NewRealClock()
	client := daymet.NewClient(cfg.DaymetURL, cfg.DaymetTimeout, cfg.DaymetPreambleLines, metrics, logger)
	fetcher := pipeline.NewAirTempFetcher(client, store, clock, cfg.DaymetRequestDelay, cfg.DaymetLastYear, logger, metrics)

	loadMetadata := func() ([]domain.StationMetadata, error) {
		return registry.LoadMetadataFile(cfg.MetadataFile)
	}

	a.runner = pipeline.NewRunner(reconciler, fetcher, loadMetadata, store, cfg.MetricsFile, clock, logger, metrics)
	return a
}

func (a *app) Close() {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
