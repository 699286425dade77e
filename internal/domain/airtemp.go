package domain

import "time"

// AirTempLookup maps a calendar date ("2006-01-02") to mean air temperature in °C.
type AirTempLookup map[string]float64

// MergeAirTemp returns a copy of days with AirTempC set from lookup where the
// date is a key and nil otherwise, so a nil lookup leaves every AirTempC nil.
// No interpolation or forward-fill is done. Merging twice equals merging once.
func MergeAirTemp(days []DailyAggregate, lookup AirTempLookup) []DailyAggregate {
	out := make([]DailyAggregate, len(days))
	for i, d := range days {
		d.AirTempC = nil
		if v, ok := lookup[d.Date]; ok && IsFinite(v) {
			d.AirTempC = Float(v)
		}
		out[i] = d
	}
	return out
}

// ClimateRequest selects one grid pixel and an inclusive range of whole years.
type ClimateRequest struct {
	Lat       float64
	Lon       float64
	StartYear int
	EndYear   int
}

// ClampYears caps end at maxYear. ok is false when nothing remains to request.
func ClampYears(start, end, maxYear int) (int, int, bool) {
	if end > maxYear {
		end = maxYear
	}
	return start, end, start <= end
}

// DayOfYear converts a year and a 1-based day-of-year ordinal to a date.
func DayOfYear(year, yday int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, yday-1)
}
