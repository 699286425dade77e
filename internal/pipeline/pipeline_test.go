package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/watertemp-etl/internal/adapter/files"
	"github.com/couchcryptid/watertemp-etl/internal/adapter/rawcsv"
	"github.com/couchcryptid/watertemp-etl/internal/adapter/registry"
	"github.com/couchcryptid/watertemp-etl/internal/domain"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
	"github.com/couchcryptid/watertemp-etl/internal/pipeline"
)

var frozenNow = time.Date(2025, time.March, 4, 5, 6, 7, 0, time.UTC)

// --- mocks ---

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.StationEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, events []domain.StationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return m.err
}

type failingStore struct {
	pipeline.Store
	failSeries string
}

func (s failingStore) WriteSeries(filename string, days []domain.DailyAggregate) error {
	if filename == s.failSeries {
		return errors.New("disk full")
	}
	return s.Store.WriteSeries(filename, days)
}

// --- fixtures ---

type env struct {
	root      string
	rawDir    string
	dataDir   string
	seriesDir string
	publicRaw string
	daymetDir string
	store     *registry.Store
	metrics   *observability.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()

	fakeClock := clockwork.NewFakeClockAt(frozenNow)
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	root := t.TempDir()
	e := &env{
		root:      root,
		rawDir:    filepath.Join(root, "raw"),
		dataDir:   filepath.Join(root, "public", "data"),
		seriesDir: filepath.Join(root, "public", "data", "data"),
		publicRaw: filepath.Join(root, "public", "data", "raw"),
		daymetDir: filepath.Join(root, "daymet_data"),
		metrics:   observability.NewMetricsForTesting(),
	}
	require.NoError(t, os.MkdirAll(e.rawDir, 0o755))
	e.store = registry.NewStore(e.dataDir, e.seriesDir, e.daymetDir)
	return e
}

func (e *env) writeRaw(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.rawDir, name), []byte(body), 0o600))
}

func (e *env) deps(publisher pipeline.Publisher) pipeline.Deps {
	d := pipeline.Deps{
		Reader:       rawcsv.Reader{},
		BuildFinder:  files.PrefixFinder{Dir: e.rawDir},
		UpdateFinder: files.SubstringFinder{Dir: e.rawDir},
		Archiver:     files.Archiver{Dir: e.publicRaw},
		Store:        e.store,
		AirTemp:      e.store,
	}
	if publisher != nil {
		d.Publisher = publisher
	}
	return d
}

func (e *env) reconciler(deps pipeline.Deps) *pipeline.Reconciler {
	return pipeline.NewReconciler(deps, pipeline.Settings{
		Provider:       domain.DefaultProvider,
		DaymetLastYear: 2023,
	}, discardLogger(), e.metrics)
}

func (e *env) readSeries(t *testing.T, filename string) []domain.DailyAggregate {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.seriesDir, filename))
	require.NoError(t, err)
	var days []domain.DailyAggregate
	require.NoError(t, json.Unmarshal(data, &days))
	return days
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const stuartRaw = "site,timestamp (UTC),wtmp (°C)\n" +
	"STU01,2021-05-01 08:00:00,10.0\n" +
	"STU01,2021-05-01 20:00:00,12.0\n" +
	"STU01,2021-05-02 08:00:00,NA\n"

func stuartMeta() domain.StationMetadata {
	return domain.StationMetadata{
		StationCode: "STU01",
		SiteName:    "Stuart River above Stuart Lake*",
		Latitude:    54.42,
		Longitude:   -124.27,
		ElevationM:  680,
		RecordStart: time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC),
		RecordEnd:   time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC),
	}
}

// --- Build ---

func TestReconciler_Build(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01_2019.csv", stuartRaw)
	e.writeRaw(t, "BAD01_2020.csv", "timestamp,wtmp\nnot a time,3\n")
	require.NoError(t, e.store.WriteAirTemp("STU01", domain.AirTempLookup{"2021-05-01": 7.25}))

	pub := &mockPublisher{}
	rows := []domain.StationMetadata{
		stuartMeta(),
		{StationCode: "NEC01", SiteName: "Nechako River at Vanderhoof"},
		{StationCode: "BAD01", SiteName: "Bad Creek"},
	}

	res, err := e.reconciler(e.deps(pub)).Build(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.RecordsWritten)

	records, err := e.store.ReadStations()
	require.NoError(t, err)
	want := []domain.StationRecord{{
		StationID:           "STU01",
		ProviderStationCode: "UNBC:STU01",
		StationCode:         "STU01",
		StationDescription:  "Stuart River above Stuart Lake",
		WaterbodyName:       "Stuart River",
		Latitude:            54.42,
		Longitude:           -124.27,
		ProviderCode:        "UNBC",
		ProviderName:        "University of Northern British Columbia",
		Dataset:             "UNBC",
		URL:                 "https://watertemp.unbc.ca/#/explorer/stations/STU01",
		Filename:            "STU01_2019.json",
		Start:               "2019-06-15",
		End:                 "2023-10-02",
		N:                   2,
	}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("station index mismatch (-want +got):\n%s", diff)
	}

	wantDays := []domain.DailyAggregate{
		{Date: "2021-05-01", TempC: domain.Float(11), MinTempC: domain.Float(10), MaxTempC: domain.Float(12), NValues: 2, AirTempC: domain.Float(7.25)},
		{Date: "2021-05-02", NValues: 0},
	}
	if diff := cmp.Diff(wantDays, e.readSeries(t, "STU01_2019.json")); diff != "" {
		t.Fatalf("series mismatch (-want +got):\n%s", diff)
	}

	cfg, err := os.ReadFile(filepath.Join(e.dataDir, "config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"daymet_last_year":2023,"last_updated":"2025-03-04T05:06:07Z"}`, string(cfg))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "STU01", pub.events[0].Station.StationCode)
	assert.Equal(t, pipeline.ModeBuild, pub.events[0].Mode)
	assert.NotEmpty(t, pub.events[0].RunID)
}

func TestReconciler_Build_MultipleCandidatesUsesFirst(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01_2021.csv", "timestamp,wtmp\n2021-01-01 00:00:00,1\n")
	e.writeRaw(t, "STU01_2019.csv", stuartRaw)

	res, err := e.reconciler(e.deps(nil)).Build(context.Background(), []domain.StationMetadata{stuartMeta()})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "STU01_2019.json", res.Records[0].Filename)
}

func TestReconciler_Build_NoAirTempLeavesNull(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01_2019.csv", stuartRaw)

	_, err := e.reconciler(e.deps(nil)).Build(context.Background(), []domain.StationMetadata{stuartMeta()})
	require.NoError(t, err)

	for _, d := range e.readSeries(t, "STU01_2019.json") {
		assert.Nil(t, d.AirTempC, d.Date)
	}
}

func TestReconciler_Build_CorruptAirTempIsIgnored(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01_2019.csv", stuartRaw)
	require.NoError(t, os.MkdirAll(e.daymetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.daymetDir, "STU01_airtemp.json"), []byte("{"), 0o600))

	res, err := e.reconciler(e.deps(nil)).Build(context.Background(), []domain.StationMetadata{stuartMeta()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestReconciler_Build_CancelledDoesNotWriteIndex(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01_2019.csv", stuartRaw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.reconciler(e.deps(nil)).Build(ctx, []domain.StationMetadata{stuartMeta()})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, e.store.StationsPath())
}

// --- Update ---

func priorIndex() []domain.StationRecord {
	return []domain.StationRecord{
		{StationID: "STU01", StationCode: "STU01", Filename: "STU01.json", Start: "2019-06-15", End: "2020-10-02", N: 10},
		{StationID: "NEC01", StationCode: "NEC01", Filename: "NEC01.json", Start: "2018-01-01", End: "2018-12-31", N: 365},
		{StationID: "BAD01", StationCode: "BAD01", Filename: "BAD01.json", Start: "2017-01-01", End: "2017-12-31", N: 300},
	}
}

func TestReconciler_Update(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "export-STU01-2021.csv", stuartRaw)
	e.writeRaw(t, "BAD01.csv", "timestamp,wtmp\n2021-01-01 00:00:00,1\nlater,2\n")
	require.NoError(t, e.store.WriteAirTemp("STU01", domain.AirTempLookup{"2021-05-02": 3.5}))

	pub := &mockPublisher{}
	res, err := e.reconciler(e.deps(pub)).Update(context.Background(), priorIndex())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)

	records, err := e.store.ReadStations()
	require.NoError(t, err)
	require.Len(t, records, 3)

	wantSTU := domain.StationRecord{
		StationID: "STU01", StationCode: "STU01", Filename: "STU01.json",
		CSVFilename: "export-STU01-2021.csv",
		Start:       "2021-05-01", End: "2021-05-02", N: 2,
	}
	assert.Equal(t, wantSTU, records[0])
	assert.Equal(t, priorIndex()[1], records[1], "unmatched station passes through")
	assert.Equal(t, priorIndex()[2], records[2], "failed station keeps previous entry")

	days := e.readSeries(t, "STU01.json")
	require.Len(t, days, 2)
	assert.Nil(t, days[0].AirTempC)
	require.NotNil(t, days[1].AirTempC)
	assert.InDelta(t, 3.5, *days[1].AirTempC, 1e-9)

	assert.FileExists(t, filepath.Join(e.publicRaw, "export-STU01-2021.csv"))

	require.Len(t, pub.events, 1)
	assert.Equal(t, pipeline.ModeUpdate, pub.events[0].Mode)
	assert.Equal(t, wantSTU, pub.events[0].Station)
}

func TestReconciler_Update_NoMatchesIsNoop(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.WriteStations(priorIndex()))
	before, err := os.ReadFile(e.store.StationsPath())
	require.NoError(t, err)

	prior, err := e.store.ReadStations()
	require.NoError(t, err)
	res, err := e.reconciler(e.deps(nil)).Update(context.Background(), prior)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)

	after, err := os.ReadFile(e.store.StationsPath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestReconciler_Update_EmptySeriesKeepsSpan(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "NEC01.csv", "timestamp,wtmp\n")

	res, err := e.reconciler(e.deps(nil)).Update(context.Background(), priorIndex()[1:2])
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 0, res.Records[0].N)
	assert.Equal(t, "2018-01-01", res.Records[0].Start)
	assert.Equal(t, "2018-12-31", res.Records[0].End)
	assert.Empty(t, e.readSeries(t, "NEC01.json"))
}

func TestReconciler_Update_SeriesWriteFailureKeepsEntry(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01.csv", stuartRaw)

	deps := e.deps(nil)
	deps.Store = failingStore{Store: e.store, failSeries: "STU01.json"}

	res, err := e.reconciler(deps).Update(context.Background(), priorIndex()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, priorIndex()[0], res.Records[0])
}

func TestReconciler_Update_PublishFailureIsNotFatal(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01.csv", stuartRaw)

	pub := &mockPublisher{err: errors.New("broker down")}
	res, err := e.reconciler(e.deps(pub)).Update(context.Background(), priorIndex()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.FileExists(t, e.store.StationsPath())
}

func TestReconciler_Update_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.writeRaw(t, "STU01.csv", stuartRaw)
	require.NoError(t, e.store.WriteAirTemp("STU01", domain.AirTempLookup{"2021-05-01": 1}))
	r := e.reconciler(e.deps(nil))

	first, err := r.Update(context.Background(), priorIndex())
	require.NoError(t, err)
	series1, err := os.ReadFile(filepath.Join(e.seriesDir, "STU01.json"))
	require.NoError(t, err)

	second, err := r.Update(context.Background(), first.Records)
	require.NoError(t, err)
	series2, err := os.ReadFile(filepath.Join(e.seriesDir, "STU01.json"))
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, string(series1), string(series2))
}

func TestRunID(t *testing.T) {
	ctx := pipeline.WithRunID(context.Background(), "run-42")
	assert.Equal(t, "run-42", pipeline.RunID(ctx))

	a, b := pipeline.RunID(context.Background()), pipeline.RunID(context.Background())
	assert.NotEqual(t, a, b)
}
