package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "watertemp"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	StationsProcessed *prometheus.CounterVec // labels: mode={build,update,airtemp}
	StationsSkipped   *prometheus.CounterVec // labels: mode
	StationsFailed    *prometheus.CounterVec // labels: mode
	RecordsWritten    prometheus.Counter
	CoercionWarnings  prometheus.Counter
	RunInProgress     prometheus.Gauge

	RunDuration *prometheus.HistogramVec // labels: mode
	LastSuccess *prometheus.GaugeVec     // labels: mode

	// Climate service metrics.
	ClimateRequests        *prometheus.CounterVec // labels: outcome={success,error}
	ClimateRequestDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

func newMetrics() *Metrics {
	return &Metrics{
		StationsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_processed_total",
			Help:      "Stations whose outputs were written, by mode.",
		}, []string{"mode"}),
		StationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_skipped_total",
			Help:      "Stations passed over without a raw file or usable date range, by mode.",
		}, []string{"mode"}),
		StationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_failed_total",
			Help:      "Stations that hit a per-station error, by mode.",
		}, []string{"mode"}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_records_written_total",
			Help:      "Daily aggregate records written to series files.",
		}),
		CoercionWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coercion_warnings_total",
			Help:      "Raw temperature values that could not be parsed as numbers.",
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a batch run is executing, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete batch run, by mode.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed, by mode.",
		}, []string{"mode"}),
		ClimateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "climate_requests_total",
			Help:      "Daymet API requests by outcome.",
		}, []string{"outcome"}),
		ClimateRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "climate_request_duration_seconds",
			Help:      "Daymet API request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StationsProcessed,
		m.StationsSkipped,
		m.StationsFailed,
		m.RecordsWritten,
		m.CoercionWarnings,
		m.RunInProgress,
		m.RunDuration,
		m.LastSuccess,
		m.ClimateRequests,
		m.ClimateRequestDuration,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	m.gatherer = prometheus.DefaultGatherer
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	m.gatherer = reg
	return m
}

// WriteTextfile dumps the current metric values in the node_exporter
// textfile collector format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
