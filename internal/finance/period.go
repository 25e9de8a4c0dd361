// Package finance computes financial overviews from the invoice corpus.
// Everything here is pure: no I/O, no stored state.
package finance

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidPeriod is returned for unknown presets and malformed ranges
var ErrInvalidPeriod = errors.New("invalid period")

// Preset names a period
type Preset string

const (
	PresetQ1         Preset = "q1"
	PresetQ2         Preset = "q2"
	PresetQ3         Preset = "q3"
	PresetQ4         Preset = "q4"
	PresetThisYear   Preset = "this_year"
	PresetYearToDate Preset = "year_to_date"
	PresetAllTime    Preset = "all_time"
	PresetCustom     Preset = "custom"
	// PresetQuarter is the legacy quarter+year form. A request with a quarter
	// and no preset resolves as this preset.
	PresetQuarter Preset = "quarter"
)

// PeriodRequest selects a period. Year is a fiscal year and defaults to the
// fiscal year containing now. Start and End are inclusive dates for custom.
type PeriodRequest struct {
	Preset  Preset     `json:"preset"`
	Year    int        `json:"year,omitempty"`
	Quarter int        `json:"quarter,omitempty"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

// Period is a half-open range [Start, End)
type Period struct {
	Preset Preset    `json:"preset"`
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Contains reports whether t lies in [Start, End)
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Duration returns End - Start
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Previous returns the period of equal length that ends where p starts.
// Month-aligned periods step back by whole months.
func (p Period) Previous() Period {
	prev := Period{Preset: p.Preset, End: p.Start}
	if months, ok := monthSpan(p.Start, p.End); ok {
		prev.Start = p.Start.AddDate(0, -months, 0)
	} else {
		prev.Start = p.Start.Add(-p.Duration())
	}
	prev.Label = fmt.Sprintf("%s to %s", prev.Start.Format(dateLayout), prev.End.AddDate(0, 0, -1).Format(dateLayout))
	return prev
}

const dateLayout = "2006-01-02"

// ResolvePeriod turns a request into a concrete range. fiscalStart is the
// first month (1-12) of the fiscal year; earliest is the date of the first
// invoice and is only used by all_time.
func ResolvePeriod(req PeriodRequest, now time.Time, fiscalStart time.Month, earliest time.Time) (Period, error) {
	if fiscalStart < time.January || fiscalStart > time.December {
		fiscalStart = time.January
	}
	loc := now.Location()
	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)

	year := req.Year
	if year == 0 {
		year = FiscalYear(now, fiscalStart)
	}
	fyStart := time.Date(year, fiscalStart, 1, 0, 0, 0, 0, loc)

	preset := req.Preset
	if preset == "" && req.Quarter != 0 {
		preset = PresetQuarter
	}
	if req.Quarter != 0 && preset != PresetQuarter {
		return Period{}, fmt.Errorf("%w: quarter is only valid with preset %q", ErrInvalidPeriod, PresetQuarter)
	}

	switch preset {
	case PresetQ1, PresetQ2, PresetQ3, PresetQ4:
		q := int(req.Preset[1] - '0')
		return quarter(req.Preset, fyStart, year, q), nil

	case PresetQuarter:
		if req.Quarter < 1 || req.Quarter > 4 {
			return Period{}, fmt.Errorf("%w: quarter must be 1-4, got %d", ErrInvalidPeriod, req.Quarter)
		}
		return quarter(preset, fyStart, year, req.Quarter), nil

	case PresetThisYear, "":
		return Period{
			Preset: PresetThisYear,
			Label:  yearLabel(year, fiscalStart),
			Start:  fyStart,
			End:    fyStart.AddDate(1, 0, 0),
		}, nil

	case PresetYearToDate:
		start := time.Date(FiscalYear(now, fiscalStart), fiscalStart, 1, 0, 0, 0, 0, loc)
		return Period{
			Preset: req.Preset,
			Label:  fmt.Sprintf("%s to date", yearLabel(FiscalYear(now, fiscalStart), fiscalStart)),
			Start:  start,
			End:    tomorrow,
		}, nil

	case PresetAllTime:
		start := startOfDay(earliest)
		if earliest.IsZero() || start.After(today) {
			start = today
		}
		return Period{Preset: req.Preset, Label: "All time", Start: start, End: tomorrow}, nil

	case PresetCustom:
		if req.Start == nil || req.End == nil {
			return Period{}, fmt.Errorf("%w: custom period needs start and end", ErrInvalidPeriod)
		}
		start := dateIn(*req.Start, loc)
		end := dateIn(*req.End, loc).AddDate(0, 0, 1)
		if !start.Before(end) {
			return Period{}, fmt.Errorf("%w: start must not be after end", ErrInvalidPeriod)
		}
		return Period{
			Preset: req.Preset,
			Label:  fmt.Sprintf("%s to %s", start.Format(dateLayout), end.AddDate(0, 0, -1).Format(dateLayout)),
			Start:  start,
			End:    end,
		}, nil
	}

	return Period{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidPeriod, req.Preset)
}

// FiscalYear returns the fiscal year t falls in. A fiscal year is named
// after the calendar year in which it starts.
func FiscalYear(t time.Time, fiscalStart time.Month) int {
	if t.Month() < fiscalStart {
		return t.Year() - 1
	}
	return t.Year()
}

func quarter(preset Preset, fyStart time.Time, year, q int) Period {
	start := fyStart.AddDate(0, 3*(q-1), 0)
	label := fmt.Sprintf("Q%d %d", q, year)
	if fyStart.Month() != time.January {
		label = fmt.Sprintf("Q%d FY%d", q, year)
	}
	return Period{Preset: preset, Label: label, Start: start, End: start.AddDate(0, 3, 0)}
}

func yearLabel(year int, fiscalStart time.Month) string {
	if fiscalStart == time.January {
		return fmt.Sprintf("%d", year)
	}
	return fmt.Sprintf("FY%d", year)
}

// dateIn returns midnight in loc of the calendar date t carries, whatever
// location t was parsed in
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// monthSpan returns the number of whole months between two month-aligned
// instants
func monthSpan(start, end time.Time) (int, bool) {
	if !isMonthStart(start) || !isMonthStart(end) {
		return 0, false
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
	return months, months > 0
}

func isMonthStart(t time.Time) bool {
	return t.Day() == 1 && t.Equal(startOfDay(t))
}

// ParsePeriodRequest builds a request from string parameters as they arrive
// on a query string or command line. Dates use the 2006-01-02 layout in loc.
func ParsePeriodRequest(preset, year, quarter, start, end string, loc *time.Location) (PeriodRequest, error) {
	req := PeriodRequest{Preset: Preset(preset)}
	var err error
	if year != "" {
		if req.Year, err = strconv.Atoi(year); err != nil {
			return req, fmt.Errorf("%w: year %q", ErrInvalidPeriod, year)
		}
	}
	if quarter != "" {
		if req.Quarter, err = strconv.Atoi(quarter); err != nil {
			return req, fmt.Errorf("%w: quarter %q", ErrInvalidPeriod, quarter)
		}
	}
	if req.Start, err = parseDate(start, loc); err != nil {
		return req, err
	}
	if req.End, err = parseDate(end, loc); err != nil {
		return req, err
	}
	return req, nil
}

func parseDate(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must look like %s", ErrInvalidPeriod, s, dateLayout)
	}
	return &t, nil
}
