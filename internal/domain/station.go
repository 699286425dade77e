package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in every output file.
const DateLayout = "2006-01-02"

// StationMetadata is one row of the station registry.
type StationMetadata struct {
	StationCode string
	SiteName    string
	Latitude    float64
	Longitude   float64
	ElevationM  float64
	RecordStart time.Time
	RecordEnd   time.Time
}

// StationRecord is an entry of the persisted station index. Field order
// matches the JSON consumed by the front end.
type StationRecord struct {
	StationID           string  `json:"station_id"`
	ProviderStationCode string  `json:"provider_station_code"`
	StationCode         string  `json:"station_code"`
	StationDescription  string  `json:"station_description"`
	WaterbodyName       string  `json:"waterbody_name"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	ProviderCode        string  `json:"provider_code"`
	ProviderName        string  `json:"provider_name"`
	Dataset             string  `json:"dataset"`
	URL                 string  `json:"url"`
	Filename            string  `json:"filename"`
	CSVFilename         string  `json:"csv_filename,omitempty"`
	Start               string  `json:"start"`
	End                 string  `json:"end"`
	N                   int     `json:"n"`
}

// Provider describes the organisation publishing the stations.
type Provider struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Dataset     string `yaml:"dataset"`
	URLTemplate string `yaml:"url_template"` // "{station}" is replaced by the station code
}

// DefaultProvider is the UNBC watershed monitoring network.
var DefaultProvider = Provider{
	Code:        "UNBC",
	Name:        "University of Northern British Columbia",
	Dataset:     "UNBC",
	URLTemplate: "https://watertemp.unbc.ca/#/explorer/stations/{station}",
}

// StationURL renders the provider's station page URL.
func (p Provider) StationURL(code string) string {
	return strings.ReplaceAll(p.URLTemplate, "{station}", code)
}

// NewStationRecord builds a fresh index entry from registry metadata. N is
// left at zero until the station's series has been aggregated.
func NewStationRecord(meta StationMetadata, p Provider, filename string) StationRecord {
	desc := CleanSiteName(meta.SiteName)
	return StationRecord{
		StationID:           meta.StationCode,
		ProviderStationCode: p.Code + ":" + meta.StationCode,
		StationCode:         meta.StationCode,
		StationDescription:  desc,
		WaterbodyName:       WaterbodyName(desc),
		Latitude:            meta.Latitude,
		Longitude:           meta.Longitude,
		ProviderCode:        p.Code,
		ProviderName:        p.Name,
		Dataset:             p.Dataset,
		URL:                 p.StationURL(meta.StationCode),
		Filename:            filename,
		Start:               formatDate(meta.RecordStart),
		End:                 formatDate(meta.RecordEnd),
	}
}

// ApplySeries overwrites the fields derived from a station's daily series.
// An empty series keeps the previous start and end.
func (r StationRecord) ApplySeries(days []DailyAggregate, csvFilename string) StationRecord {
	r.N = len(days)
	r.CSVFilename = csvFilename
	if len(days) > 0 {
		r.Start = days[0].Date
		r.End = days[len(days)-1].Date
	}
	return r
}

// SeriesFilename maps a raw file to its series file name:
// "raw/STU01_2019.csv" becomes "STU01_2019.json".
func SeriesFilename(rawPath string) string {
	base := filepath.Base(rawPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}

// siteNameCutset holds the export artifacts stripped from both ends of a site name.
const siteNameCutset = "*\ufffd\u00a0 \t\r\n"

// CleanSiteName strips export artifacts from a registry site name.
func CleanSiteName(name string) string {
	return strings.Trim(name, siteNameCutset)
}

// WaterbodyName derives the waterbody from a site description by cutting at
// the first positional qualifier, e.g. "Stuart River above Stuart Lake" -> "Stuart River".
func WaterbodyName(site string) string {
	site = CleanSiteName(site)
	for _, sep := range []string{" above ", " below ", " at "} {
		site, _, _ = strings.Cut(site, sep)
	}
	return site
}

// SiteConfig is the front end's config.json.
type SiteConfig struct {
	DaymetLastYear int    `json:"daymet_last_year"`
	LastUpdated    string `json:"last_updated"`
}

// NewSiteConfig stamps a SiteConfig with the current time.
func NewSiteConfig(daymetLastYear int) SiteConfig {
	return SiteConfig{
		DaymetLastYear: daymetLastYear,
		LastUpdated:    clock.Now().UTC().Format(time.RFC3339),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
