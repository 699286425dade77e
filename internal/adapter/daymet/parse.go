package daymet

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

// DefaultPreambleLines is the number of metadata lines ahead of the CSV header.
const DefaultPreambleLines = 6

const (
	colYear = "year"
	colYday = "yday"
	colTmax = "tmax (deg c)"
	colTmin = "tmin (deg c)"
)

const maxYday = 366

// ParseCSV turns a Daymet extract into a date -> mean air temperature lookup.
// The first preamble lines are skipped; the next line must be the header.
// Each day's value is (tmax+tmin)/2 rounded to two decimals. Rows with
// non-numeric or non-finite fields, or a yday outside 1..366, are skipped.
func ParseCSV(r io.Reader, preamble int) (domain.AirTempLookup, error) {
	br := bufio.NewReader(r)
	for i := 0; i < preamble; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, &domain.ParseError{Source: "daymet", Line: i + 1, Err: fmt.Errorf("truncated preamble: %w", err)}
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &domain.ParseError{Source: "daymet", Line: preamble + 1, Err: fmt.Errorf("read header: %w", err)}
	}
	idx, err := headerIndexes(header)
	if err != nil {
		return nil, &domain.ParseError{Source: "daymet", Line: preamble + 1, Err: err}
	}

	lookup := domain.AirTempLookup{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ParseError{Source: "daymet", Err: err}
		}
		date, mean, ok := parseRow(rec, idx)
		if !ok {
			continue
		}
		lookup[date] = mean
	}
	return lookup, nil
}

type columnIndexes struct {
	year, yday, tmax, tmin int
}

func headerIndexes(header []string) (columnIndexes, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var idx columnIndexes
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{colYear, &idx.year},
		{colYday, &idx.yday},
		{colTmax, &idx.tmax},
		{colTmin, &idx.tmin},
	} {
		i, ok := pos[c.name]
		if !ok {
			return idx, fmt.Errorf("missing column %q in header %q", c.name, header)
		}
		*c.dst = i
	}
	return idx, nil
}

func parseRow(rec []string, idx columnIndexes) (string, float64, bool) {
	field := func(i int) (float64, bool) {
		if i >= len(rec) {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		return v, err == nil && domain.IsFinite(v)
	}

	year, ok := field(idx.year)
	if !ok {
		return "", 0, false
	}
	yday, ok := field(idx.yday)
	if !ok || yday < 1 || yday > maxYday {
		return "", 0, false
	}
	tmax, ok := field(idx.tmax)
	if !ok {
		return "", 0, false
	}
	tmin, ok := field(idx.tmin)
	if !ok {
		return "", 0, false
	}

	date := domain.DayOfYear(int(year), int(yday)).Format(domain.DateLayout)
	return date, domain.Round2((tmax + tmin) / 2), true
}
