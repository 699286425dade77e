// Package domain models watershed water-temperature station data and the
// daily summaries derived from it.
//
// # Data Sources
//
// Station registry: a tab-separated text file shipped with the watershed
// dataset (Site_Metadata.txt). It is Latin-1 encoded and has exactly seven
// columns in a fixed order:
//
//	code  name  latitude  longitude  elevation_m  record_start  record_end
//
// The header row is not trusted; columns are assigned by position. Site names
// sometimes carry stray punctuation from the spreadsheet export
// (a trailing "*", a non-breaking space, or a replacement character).
//
// Raw logger series: one CSV per station, named "<code>_<suffix>.csv". Two
// column conventions exist across dataset releases:
//
//	timestamp (UTC), wtmp (°C)   older export
//	timestamp, wtmp              newer export
//
// Timestamps are labelled UTC but are treated as wall-clock values; the
// calendar date is taken as written, with no timezone conversion.
//
// Air temperature: Daymet single-pixel extraction (daily tmax/tmin on a 1 km
// grid). Daymet lags the present, so the requested end year is capped at the
// last published year.
//
// # Absence
//
// Every numeric field that may be missing is a pointer. A nil pointer is the
// absence marker and serializes as JSON null. NaN is never produced.
//
// # Outputs
//
// The front end reads three kinds of JSON file:
//
//	stations.json     []StationRecord, the registry index
//	data/<file>.json  []DailyAggregate per station
//	config.json       SiteConfig
package domain
