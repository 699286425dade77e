package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

// metadataColumns is the fixed positional layout of the registry file:
// code, site name, latitude, longitude, elevation, record start, record end.
const metadataColumns = 7

// recordDateLayouts are the date spellings seen in registry exports.
var recordDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"1/2/2006",
	"1/2/2006 15:04",
}

// LoadMetadataFile opens path and parses it with LoadMetadata.
func LoadMetadataFile(path string) ([]domain.StationMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	rows, err := LoadMetadata(f)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) && pe.Source == "" {
			pe.Source = path
		}
		return nil, err
	}
	return rows, nil
}

// LoadMetadata parses a Latin-1 encoded, tab-separated station registry. The
// header line must have the registry's column count and is otherwise skipped;
// columns are assigned by position. A line with the wrong number of columns or an unparseable number or date yields a
// *domain.ParseError naming the line.
func LoadMetadata(r io.Reader) ([]domain.StationMetadata, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.ParseError{Err: errors.New("empty registry")}
		}
		return nil, &domain.ParseError{Line: 1, Err: err}
	}
	if len(header) != metadataColumns {
		line, _ := cr.FieldPos(0)
		return nil, &domain.ParseError{
			Line: line,
			Err:  fmt.Errorf("header: expected %d columns, got %d", metadataColumns, len(header)),
		}
	}

	var out []domain.StationMetadata
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var ce *csv.ParseError
			if errors.As(err, &ce) {
				return nil, &domain.ParseError{Line: ce.Line, Err: ce.Err}
			}
			return nil, &domain.ParseError{Err: err}
		}
		line, _ := cr.FieldPos(0)
		if len(fields) != metadataColumns {
			return nil, &domain.ParseError{
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", metadataColumns, len(fields)),
			}
		}

		row, err := parseMetadataRow(fields)
		if err != nil {
			return nil, &domain.ParseError{Line: line, Err: err}
		}
		out = append(out, row)
	}
	return out, nil
}

func parseMetadataRow(fields []string) (domain.StationMetadata, error) {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	row := domain.StationMetadata{
		StationCode: fields[0],
		SiteName:    fields[1],
	}
	if row.StationCode == "" {
		return row, errors.New("empty station code")
	}

	var err error
	if row.Latitude, err = parseNumber("latitude", fields[2]); err != nil {
		return row, err
	}
	if row.Longitude, err = parseNumber("longitude", fields[3]); err != nil {
		return row, err
	}
	if row.ElevationM, err = parseNumber("elevation", fields[4]); err != nil {
		return row, err
	}
	if row.RecordStart, err = parseRecordDate("record start", fields[5]); err != nil {
		return row, err
	}
	if row.RecordEnd, err = parseRecordDate("record end", fields[6]); err != nil {
		return row, err
	}
	return row, nil
}

func parseNumber(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", field, s)
	}
	return v, nil
}

func parseRecordDate(field, s string) (time.Time, error) {
	for _, layout := range recordDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s %q is not a date", field, s)
}
