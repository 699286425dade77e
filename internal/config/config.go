package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

// Raw series column conventions accepted by RAW_COLUMNS.
const (
	ColumnsAuto  = "auto"
	ColumnsUTC   = "utc"
	ColumnsPlain = "plain"
)

// File matching strategies accepted by MATCH_STRATEGY.
const (
	MatchSubstring = "substring"
	MatchPrefix    = "prefix"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	MetadataFile string
	RawDir       string
	DataDir      string
	SeriesDir    string
	PublicRawDir string

	DaymetDir           string
	DaymetURL           string
	DaymetLastYear      int
	DaymetTimeout       time.Duration
	DaymetRequestDelay  time.Duration
	DaymetPreambleLines int

	RawColumns    string
	MatchStrategy string

	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	ScheduleInterval time.Duration
	MetricsFile      string

	// Kafka publishing is enabled when at least one broker is configured.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	ProviderFile string
	Provider     domain.Provider
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	durations := map[string]string{
		"DAYMET_TIMEOUT":       "60s",
		"DAYMET_REQUEST_DELAY": "1s",
		"SCHEDULE_INTERVAL":    "24h",
	}
	parsed := make(map[string]time.Duration, len(durations))
	for key, def := range durations {
		d, err := parseDuration(key, def)
		if err != nil {
			return nil, err
		}
		parsed[key] = d
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	lastYear, err := parsePositiveInt("DAYMET_LAST_YEAR", 2023)
	if err != nil {
		return nil, err
	}
	preamble, err := parseNonNegativeInt("DAYMET_PREAMBLE_LINES", 6)
	if err != nil {
		return nil, err
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", filepath.Join("public", "data"))
	brokers := sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		MetadataFile: sharedcfg.EnvOrDefault("METADATA_FILE", "Site_Metadata.txt"),
		RawDir:       sharedcfg.EnvOrDefault("RAW_DIR", "raw"),
		DataDir:      dataDir,
		SeriesDir:    sharedcfg.EnvOrDefault("SERIES_DIR", filepath.Join(dataDir, "data")),
		PublicRawDir: sharedcfg.EnvOrDefault("PUBLIC_RAW_DIR", filepath.Join(dataDir, "raw")),

		DaymetDir:           sharedcfg.EnvOrDefault("DAYMET_DIR", "daymet_data"),
		DaymetURL:           sharedcfg.EnvOrDefault("DAYMET_URL", "https://daymet.ornl.gov/single-pixel/api/data"),
		DaymetLastYear:      lastYear,
		DaymetTimeout:       parsed["DAYMET_TIMEOUT"],
		DaymetRequestDelay:  parsed["DAYMET_REQUEST_DELAY"],
		DaymetPreambleLines: preamble,

		RawColumns:    strings.ToLower(sharedcfg.EnvOrDefault("RAW_COLUMNS", ColumnsAuto)),
		MatchStrategy: strings.ToLower(sharedcfg.EnvOrDefault("MATCH_STRATEGY", MatchSubstring)),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,

		ScheduleInterval: parsed["SCHEDULE_INTERVAL"],
		MetricsFile:      os.Getenv("METRICS_FILE"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "station-updates"),
		KafkaEnabled: len(brokers) > 0,

		ProviderFile: os.Getenv("PROVIDER_FILE"),
		Provider:     domain.DefaultProvider,
	}

	switch cfg.RawColumns {
	case ColumnsAuto, ColumnsUTC, ColumnsPlain:
	default:
		return nil, fmt.Errorf("invalid RAW_COLUMNS %q (allowed: auto, utc, plain)", cfg.RawColumns)
	}
	switch cfg.MatchStrategy {
	case MatchSubstring, MatchPrefix:
	default:
		return nil, fmt.Errorf("invalid MATCH_STRATEGY %q (allowed: substring, prefix)", cfg.MatchStrategy)
	}
	if cfg.DaymetURL == "" {
		return nil, errors.New("DAYMET_URL is required")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if cfg.ProviderFile != "" {
		p, err := LoadProvider(cfg.ProviderFile)
		if err != nil {
			return nil, err
		}
		cfg.Provider = p
	}

	return cfg, nil
}

// SeriesColumns resolves RAW_COLUMNS to a fixed column pair. ok is false for
// "auto", meaning the reader detects the convention from each file's header.
func (c *Config) SeriesColumns() (cols domain.SeriesColumns, ok bool) {
	switch c.RawColumns {
	case ColumnsUTC:
		return domain.ColumnsUTC, true
	case ColumnsPlain:
		return domain.ColumnsPlain, true
	default:
		return domain.SeriesColumns{}, false
	}
}

// LoadProvider reads a YAML provider profile. Fields left empty fall back to
// domain.DefaultProvider.
func LoadProvider(path string) (domain.Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Provider{}, fmt.Errorf("reading PROVIDER_FILE: %w", err)
	}

	p := domain.DefaultProvider
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.Provider{}, fmt.Errorf("parsing PROVIDER_FILE: %w", err)
	}
	if p.Code == "" {
		return domain.Provider{}, errors.New("PROVIDER_FILE: code is required")
	}
	return p, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	n, err := parseNonNegativeInt(key, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}
