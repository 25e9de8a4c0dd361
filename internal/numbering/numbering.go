// Package numbering renders document numbers from templates such as
// "{PREFIX}-{YEAR}-{NUMBER:4}" and advances the counters behind them.
package numbering

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
)

// DefaultFormat is used when a numbering state has no template
const DefaultFormat = "{PREFIX}-{YEAR}-{NUMBER:4}"

// MaxWidth bounds the zero padding of a placeholder
const MaxWidth = 12

// ErrInvalidTemplate is returned by Validate
var ErrInvalidTemplate = errors.New("invalid number template")

// Placeholder names
const (
	Prefix     = "PREFIX"
	Year       = "YEAR"
	YY         = "YY"
	Month      = "MONTH"
	Day        = "DAY"
	Number     = "NUMBER"
	NumberYear = "NUMBER_YEAR"
)

var known = map[string]bool{
	Prefix: true, Year: true, YY: true, Month: true, Day: true, Number: true, NumberYear: true,
}

// Matches {NAME} and {NAME:WIDTH}; the width group is loose so Validate can
// report malformed widths instead of silently ignoring them.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z_]+)(?::([^{}]*))?\}`)

// Values are the inputs substituted into a template
type Values struct {
	Prefix     string
	Date       time.Time
	Number     int
	YearNumber int
}

// Validate checks that every placeholder is recognized, every width is a
// number between 1 and MaxWidth, and that the template contains a counter
func Validate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("%w: template is empty", ErrInvalidTemplate)
	}

	hasCounter := false
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if !known[name] {
			return fmt.Errorf("%w: unknown placeholder {%s}", ErrInvalidTemplate, name)
		}
		if strings.Contains(m[0], ":") {
			width, err := strconv.Atoi(m[2])
			if err != nil || width < 1 || width > MaxWidth {
				return fmt.Errorf("%w: bad width %q in %s", ErrInvalidTemplate, m[2], m[0])
			}
		}
		if name == Number || name == NumberYear {
			hasCounter = true
		}
	}

	if !hasCounter {
		return fmt.Errorf("%w: template needs {%s} or {%s}", ErrInvalidTemplate, Number, NumberYear)
	}
	return nil
}

// Render substitutes every recognized placeholder. Unknown placeholders and
// malformed widths are left verbatim.
func Render(template string, v Values) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		m := placeholderRe.FindStringSubmatch(token)
		name := m[1]

		width := 0
		if strings.Contains(token, ":") {
			w, err := strconv.Atoi(m[2])
			if err != nil || w < 1 || w > MaxWidth {
				return token
			}
			width = w
		}

		var value string
		switch name {
		case Prefix:
			return pad(v.Prefix, width)
		case Year:
			value = strconv.Itoa(v.Date.Year())
		case YY:
			value = fmt.Sprintf("%02d", v.Date.Year()%100)
		case Month:
			value = fmt.Sprintf("%02d", int(v.Date.Month()))
		case Day:
			value = fmt.Sprintf("%02d", v.Date.Day())
		case Number:
			value = strconv.Itoa(v.Number)
		case NumberYear:
			value = strconv.Itoa(v.YearNumber)
		default:
			return token
		}
		return pad(value, width)
	})
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// YearKey returns the yearCounters key for t
func YearKey(t time.Time) string {
	return strconv.Itoa(t.Year())
}

// Peek renders the number the next document issued at t would receive
// without advancing any counter
func Peek(state *domain.NumberingState, at time.Time) string {
	format := state.Format
	if format == "" {
		format = DefaultFormat
	}
	next := state.NextNumber
	if next < 1 {
		next = 1
	}
	return Render(format, Values{
		Prefix:     state.Prefix,
		Date:       at,
		Number:     next,
		YearNumber: state.YearCounters[YearKey(at)] + 1,
	})
}

// Next renders the number for a document issued at t and advances both the
// lifetime counter and the year bucket of t. The first number of a year is 1
// regardless of the lifetime counter.
func Next(state *domain.NumberingState, at time.Time) string {
	number := Peek(state, at)

	if state.NextNumber < 1 {
		state.NextNumber = 1
	}
	state.NextNumber++
	if state.YearCounters == nil {
		state.YearCounters = map[string]int{}
	}
	state.YearCounters[YearKey(at)]++
	return number
}
