// Package rawcsv reads raw station logger exports into observations.
package rawcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

// timestampLayouts are tried in order. time.Parse accepts fractional seconds
// after the seconds field even when a layout omits them.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

// missingTokens are cells treated as an absent reading rather than a coercion.
var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"nan":  true,
	"n/a":  true,
	"null": true,
	"-":    true,
}

// Reader parses raw series files. A zero Columns value detects the column
// convention from each file's header.
type Reader struct {
	Columns domain.SeriesColumns
	Comma   rune // defaults to ','
}

// ReadFile opens path and reads it for station.
func (r Reader) ReadFile(station, path string) (domain.RawSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawSeries{}, &domain.ProcessingError{
			Station: station,
			Err:     &domain.ParseError{Source: path, Err: err},
		}
	}
	defer f.Close()

	return r.Read(station, path, f)
}

// Read parses a raw series from in. source names the input in errors. Any
// structural problem or unparseable timestamp fails the whole file with a
// *domain.ProcessingError wrapping a *domain.ParseError.
func (r Reader) Read(station, source string, in io.Reader) (domain.RawSeries, error) {
	res, err := r.read(source, in)
	if err != nil {
		return domain.RawSeries{}, &domain.ProcessingError{Station: station, Err: err}
	}
	return res, nil
}

func (r Reader) read(source string, in io.Reader) (domain.RawSeries, error) {
	cr := csv.NewReader(in)
	if r.Comma != 0 {
		cr.Comma = r.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawSeries{}, &domain.ParseError{Source: source, Err: errors.New("missing header")}
	}
	if err != nil {
		return domain.RawSeries{}, &domain.ParseError{Source: source, Line: 1, Err: err}
	}

	cols := r.Columns
	if cols == (domain.SeriesColumns{}) {
		var ok bool
		if cols, ok = domain.DetectColumns(header); !ok {
			return domain.RawSeries{}, &domain.ParseError{
				Source: source, Line: 1,
				Err: fmt.Errorf("no known timestamp/temperature columns in header %q", header),
			}
		}
	}
	tsIdx, tempIdx, ok := cols.Indexes(header)
	if !ok {
		return domain.RawSeries{}, &domain.ParseError{
			Source: source, Line: 1,
			Err: fmt.Errorf("header lacks %q or %q", cols.Timestamp, cols.Temperature),
		}
	}
	need := max(tsIdx, tempIdx) + 1

	res := domain.RawSeries{Columns: cols}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawSeries{}, &domain.ParseError{Source: source, Line: csvErrorLine(err), Err: err}
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < need {
			return domain.RawSeries{}, &domain.ParseError{
				Source: source, Line: line,
				Err: fmt.Errorf("expected at least %d fields, got %d", need, len(rec)),
			}
		}

		raw := strings.TrimSpace(rec[tsIdx])
		if raw == "" {
			res.Skipped++
			continue
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			return domain.RawSeries{}, &domain.ParseError{Source: source, Line: line, Err: err}
		}

		temp, coerced := parseTemperature(rec[tempIdx])
		if coerced {
			res.Coerced++
		}
		res.Observations = append(res.Observations, domain.Observation{Timestamp: ts, WaterTempC: temp})
	}
	return res, nil
}

func csvErrorLine(err error) int {
	var ce *csv.ParseError
	if errors.As(err, &ce) {
		return ce.Line
	}
	return 0
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// parseTemperature returns nil for absent or non-numeric cells. coerced
// reports a non-empty cell that was not a number.
func parseTemperature(s string) (v *float64, coerced bool) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, true
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, true
	}
	return domain.Float(f), false
}
