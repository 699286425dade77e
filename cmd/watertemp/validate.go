package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/watertemp-etl/internal/adapter/registry"
	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the published dataset for internal consistency",
	Long: `Reads stations.json and every series file it references and verifies that
the index and series agree: unique codes and filenames, n matching the series
length, ascending unique dates and consistent daily statistics. Exits non-zero
if any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := registry.NewStore(cfg.DataDir, cfg.SeriesDir, cfg.DaymetDir)
		rep, err := validateDataset(store)
		if err != nil {
			return err
		}
		rep.print(cmd.OutOrStdout())
		if !rep.passed() {
			return errors.New("validation failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

type datasetReader interface {
	ReadStations() ([]domain.StationRecord, error)
	ReadSeries(filename string) ([]domain.DailyAggregate, error)
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type report struct {
	phases   []*phase
	stations int
	days     int
}

func (r report) passed() bool {
	for _, p := range r.phases {
		if !p.passed() {
			return false
		}
	}
	return true
}

func (r report) print(w io.Writer) {
	fmt.Fprintln(w, "=== Water Temperature Dataset Validation ===")
	fmt.Fprintln(w)
	for _, p := range r.phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stations: %d, daily records: %d\n", r.stations, r.days)

	for _, p := range r.phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}
}

// validateDataset runs every phase. Only an unreadable index is returned as
// an error; everything else is reported.
func validateDataset(store datasetReader) (report, error) {
	records, err := store.ReadStations()
	if err != nil {
		return report{}, err
	}

	rep := report{stations: len(records)}
	series := make(map[string][]domain.DailyAggregate, len(records))
	seriesPhase := &phase{name: "Series files"}
	for _, rec := range records {
		if rec.Filename == "" {
			continue
		}
		days, err := store.ReadSeries(rec.Filename)
		if err != nil {
			seriesPhase.errorf("%s: %v", rec.StationCode, err)
			continue
		}
		series[rec.Filename] = days
		rep.days += len(days)
		checkSeries(seriesPhase, rec, days)
	}

	rep.phases = []*phase{
		validateIndex(records),
		seriesPhase,
		validateStatistics(records, series),
	}
	return rep, nil
}

func validateIndex(records []domain.StationRecord) *phase {
	p := &phase{name: "Station index"}
	codes := make(map[string]bool, len(records))
	files := make(map[string]string, len(records))

	for i, rec := range records {
		if rec.StationCode == "" {
			p.errorf("entry %d: empty station_code", i)
			continue
		}
		if codes[rec.StationCode] {
			p.errorf("%s: duplicate station_code", rec.StationCode)
		}
		codes[rec.StationCode] = true

		if rec.Filename == "" {
			p.errorf("%s: empty filename", rec.StationCode)
		} else if other, ok := files[rec.Filename]; ok {
			p.errorf("%s: filename %s already used by %s", rec.StationCode, rec.Filename, other)
		} else {
			files[rec.Filename] = rec.StationCode
		}

		if rec.Latitude < -90 || rec.Latitude > 90 || rec.Longitude < -180 || rec.Longitude > 180 {
			p.errorf("%s: coordinates out of range (%g, %g)", rec.StationCode, rec.Latitude, rec.Longitude)
		}
		if rec.N < 0 {
			p.errorf("%s: negative n %d", rec.StationCode, rec.N)
		}
		if rec.Start != "" && rec.End != "" && rec.Start > rec.End {
			p.errorf("%s: start %s after end %s", rec.StationCode, rec.Start, rec.End)
		}
	}
	return p
}

func checkSeries(p *phase, rec domain.StationRecord, days []domain.DailyAggregate) {
	if len(days) != rec.N {
		p.errorf("%s: n is %d but %s has %d days", rec.StationCode, rec.N, rec.Filename, len(days))
	}

	prev := ""
	for _, d := range days {
		if _, err := time.Parse(domain.DateLayout, d.Date); err != nil {
			p.errorf("%s: invalid date %q", rec.StationCode, d.Date)
			continue
		}
		if prev != "" && d.Date <= prev {
			p.errorf("%s: date %s not after %s", rec.StationCode, d.Date, prev)
		}
		prev = d.Date
	}

	// Updated entries take their span from the series itself.
	if rec.CSVFilename != "" && len(days) > 0 {
		if first := days[0].Date; rec.Start != first {
			p.errorf("%s: start %s but first day is %s", rec.StationCode, rec.Start, first)
		}
		if last := days[len(days)-1].Date; rec.End != last {
			p.errorf("%s: end %s but last day is %s", rec.StationCode, rec.End, last)
		}
	}
}

func validateStatistics(records []domain.StationRecord, series map[string][]domain.DailyAggregate) *phase {
	p := &phase{name: "Daily statistics"}
	for _, rec := range records {
		for _, d := range series[rec.Filename] {
			checkDay(p, rec.StationCode, d)
		}
	}
	return p
}

func checkDay(p *phase, code string, d domain.DailyAggregate) {
	stats := []*float64{d.TempC, d.MinTempC, d.MaxTempC}
	if d.NValues == 0 {
		for _, v := range stats {
			if v != nil {
				p.errorf("%s %s: statistics present with n_values 0", code, d.Date)
				return
			}
		}
		return
	}
	if d.NValues < 0 {
		p.errorf("%s %s: negative n_values %d", code, d.Date, d.NValues)
		return
	}
	for _, v := range stats {
		if v == nil {
			p.errorf("%s %s: missing statistic with n_values %d", code, d.Date, d.NValues)
			return
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || domain.Round2(*v) != *v {
			p.errorf("%s %s: value %v not rounded to 2 decimals", code, d.Date, *v)
			return
		}
	}
	if *d.MinTempC > *d.TempC || *d.TempC > *d.MaxTempC {
		p.errorf("%s %s: mean %v outside [%v, %v]", code, d.Date, *d.TempC, *d.MinTempC, *d.MaxTempC)
	}
}
