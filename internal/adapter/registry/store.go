package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

const (
	stationsFile   = "stations.json"
	siteConfigFile = "config.json"
)

// Store persists the pipeline's JSON outputs: the station index and site
// config under dataDir, per-station series under seriesDir, and Daymet
// responses and air temperature lookups under daymetDir.
type Store struct {
	dataDir   string
	seriesDir string
	daymetDir string
}

// NewStore creates a Store rooted at the given directories. Directories are
// created on first write.
func NewStore(dataDir, seriesDir, daymetDir string) *Store {
	return &Store{dataDir: dataDir, seriesDir: seriesDir, daymetDir: daymetDir}
}

// StationsPath returns the location of stations.json.
func (s *Store) StationsPath() string {
	return filepath.Join(s.dataDir, stationsFile)
}

// ReadStations loads the station index.
func (s *Store) ReadStations() ([]domain.StationRecord, error) {
	data, err := os.ReadFile(s.StationsPath())
	if err != nil {
		return nil, fmt.Errorf("read station index: %w", err)
	}
	var records []domain.StationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &domain.ParseError{Source: s.StationsPath(), Err: err}
	}
	return records, nil
}

// WriteStations replaces the station index.
func (s *Store) WriteStations(records []domain.StationRecord) error {
	if records == nil {
		records = []domain.StationRecord{}
	}
	return writeJSON(s.StationsPath(), records)
}

// WriteSeries writes one station's daily aggregates to seriesDir/filename.
func (s *Store) WriteSeries(filename string, days []domain.DailyAggregate) error {
	if days == nil {
		days = []domain.DailyAggregate{}
	}
	return writeJSON(filepath.Join(s.seriesDir, filename), days)
}

// ReadSeries loads one station's daily aggregates.
func (s *Store) ReadSeries(filename string) ([]domain.DailyAggregate, error) {
	path := filepath.Join(s.seriesDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	var days []domain.DailyAggregate
	if err := json.Unmarshal(data, &days); err != nil {
		return nil, &domain.ParseError{Source: path, Err: err}
	}
	return days, nil
}

// WriteSiteConfig replaces config.json.
func (s *Store) WriteSiteConfig(cfg domain.SiteConfig) error {
	return writeJSON(filepath.Join(s.dataDir, siteConfigFile), cfg)
}

// ReadAirTemp loads a station's air temperature lookup. A station that has
// never been fetched has no lookup, reported as nil without error.
func (s *Store) ReadAirTemp(code string) (domain.AirTempLookup, error) {
	path := s.airTempPath(code)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read air temperature: %w", err)
	}
	var lookup domain.AirTempLookup
	if err := json.Unmarshal(data, &lookup); err != nil {
		return nil, &domain.ParseError{Source: path, Err: err}
	}
	return lookup, nil
}

// WriteAirTemp replaces a station's air temperature lookup.
func (s *Store) WriteAirTemp(code string, lookup domain.AirTempLookup) error {
	if lookup == nil {
		lookup = domain.AirTempLookup{}
	}
	return writeJSON(s.airTempPath(code), lookup)
}

// WriteDaymetRaw saves an unparsed Daymet response for later inspection.
func (s *Store) WriteDaymetRaw(code string, body []byte) error {
	return writeFile(filepath.Join(s.daymetDir, code+"_daymet.csv"), body)
}

func (s *Store) airTempPath(code string) string {
	return filepath.Join(s.daymetDir, code+"_airtemp.json")
}

// encodeJSON renders v with two-space indentation, literal '<' '>' '&' and a
// trailing newline, so re-encoding decoded output reproduces it byte for byte.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(path string, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

// writeFile replaces path via a temporary file in the same directory so
// readers never observe a partial write.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
