package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Observation is a single logged sample from a raw station series.
type Observation struct {
	Timestamp  time.Time
	WaterTempC *float64 // nil when the logged value was missing or non-numeric
}

// DailyAggregate summarizes one calendar day of observations.
type DailyAggregate struct {
	Date     string   `json:"date"`
	TempC    *float64 `json:"temp_c"`
	MinTempC *float64 `json:"min_temp_c"`
	MaxTempC *float64 `json:"max_temp_c"`
	NValues  int      `json:"n_values"`
	AirTempC *float64 `json:"airtemp_c"`
}

// RawSeries is the parsed content of one raw station file.
type RawSeries struct {
	Observations []Observation
	Columns      SeriesColumns
	// Coerced counts non-empty temperature cells that were not numeric and
	// were read as missing.
	Coerced int
	// Skipped counts rows with an empty timestamp.
	Skipped int
}

// SeriesColumns names the timestamp and temperature columns of a raw series file.
type SeriesColumns struct {
	Timestamp   string
	Temperature string
}

var (
	// ColumnsUTC is the older export convention.
	ColumnsUTC = SeriesColumns{Timestamp: "timestamp (UTC)", Temperature: "wtmp (°C)"}
	// ColumnsPlain is the newer export convention.
	ColumnsPlain = SeriesColumns{Timestamp: "timestamp", Temperature: "wtmp"}
)

// DetectColumns returns the known convention whose columns are both present
// in header. Header cells are compared after trimming whitespace and a UTF-8 BOM.
func DetectColumns(header []string) (SeriesColumns, bool) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[normalizeHeader(h)] = true
	}
	for _, c := range []SeriesColumns{ColumnsUTC, ColumnsPlain} {
		if present[c.Timestamp] && present[c.Temperature] {
			return c, true
		}
	}
	return SeriesColumns{}, false
}

// Indexes locates both columns in header. ok is false if either is missing.
func (c SeriesColumns) Indexes(header []string) (ts, temp int, ok bool) {
	ts, temp = -1, -1
	for i, h := range header {
		switch normalizeHeader(h) {
		case c.Timestamp:
			if ts < 0 {
				ts = i
			}
		case c.Temperature:
			if temp < 0 {
				temp = i
			}
		}
	}
	return ts, temp, ts >= 0 && temp >= 0
}

func normalizeHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

// dayStats accumulates running statistics for one calendar date.
type dayStats struct {
	sum      float64
	min, max float64
	n        int
}

func (s *dayStats) add(v float64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.sum += v
	s.n++
}

// AggregateDaily groups observations by the calendar date of their timestamp
// (as written, without timezone conversion) and returns one aggregate per
// date in ascending order. Mean, min and max are computed over non-missing
// values and rounded to two decimals; a date with no valid values has nil
// statistics and NValues 0. AirTempC is left nil.
func AggregateDaily(obs []Observation) []DailyAggregate {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	stats := make(map[string]*dayStats)
	dates := make([]string, 0)
	for _, o := range sorted {
		date := o.Timestamp.Format(DateLayout)
		s, ok := stats[date]
		if !ok {
			s = &dayStats{}
			stats[date] = s
			dates = append(dates, date)
		}
		if o.WaterTempC != nil && IsFinite(*o.WaterTempC) {
			s.add(*o.WaterTempC)
		}
	}
	// Mixed UTC offsets can reorder wall-clock dates.
	sort.Strings(dates)

	out := make([]DailyAggregate, 0, len(dates))
	for _, date := range dates {
		s := stats[date]
		day := DailyAggregate{Date: date, NValues: s.n}
		if s.n > 0 {
			day.TempC = Float(Round2(s.sum / float64(s.n)))
			day.MinTempC = Float(Round2(s.min))
			day.MaxTempC = Float(Round2(s.max))
		}
		out = append(out, day)
	}
	return out
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
