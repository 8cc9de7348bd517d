package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const defaultMaxOccurrences = 500

// ErrInvalidRule indicates the RRULE text could not be parsed.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// ErrInvalidWindow indicates the expansion window is empty or inverted.
var ErrInvalidWindow = errors.New("recurrence: window end must be after window start")

// Series describes a recurring event: the first occurrence plus its rule.
type Series struct {
	EventID string
	Rule    string
	Start   time.Time
	End     *time.Time
	AllDay  bool
}

// Occurrence is one concrete instance of a Series.
type Occurrence struct {
	EventID string
	Start   time.Time
	End     *time.Time
}

// Window bounds expansion to [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Engine expands RRULE-based series into occurrences.
type Engine struct {
	location       *time.Location
	maxOccurrences int
}

// NewEngine constructs an Engine whose all-day occurrences are anchored in loc.
// If loc is nil, UTC is used. maxOccurrences caps each expansion; zero or
// negative means the package default.
func NewEngine(loc *time.Location, maxOccurrences int) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}
	return &Engine{location: loc, maxOccurrences: maxOccurrences}
}

// Validate reports whether rule is a parsable RRULE. An empty rule is valid
// and means the event does not repeat.
func Validate(rule string) error {
	normalized := normalizeRule(rule)
	if normalized == "" {
		return nil
	}
	if _, err := rrule.StrToROption(normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// Expand returns the occurrences of series that start inside window, in
// chronological order. The second result reports whether the cap was hit.
//
// A series without a rule yields its single occurrence when it falls in the
// window. Each occurrence keeps the duration of the first one.
func (e *Engine) Expand(series Series, window Window) ([]Occurrence, bool, error) {
	if !window.To.After(window.From) {
		return nil, false, ErrInvalidWindow
	}

	var duration time.Duration
	if series.End != nil && series.End.After(series.Start) {
		duration = series.End.Sub(series.Start)
	}

	normalized := normalizeRule(series.Rule)
	if normalized == "" {
		if series.Start.Before(window.From) || !series.Start.Before(window.To) {
			return nil, false, nil
		}
		return []Occurrence{e.occurrence(series, series.Start, duration)}, false, nil
	}

	option, err := rrule.StrToROption(normalized)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	option.Dtstart = e.anchor(series)

	rule, err := rrule.NewRRule(*option)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	from := window.From.In(option.Dtstart.Location())
	to := window.To.In(option.Dtstart.Location()).Add(-time.Nanosecond)
	starts := rule.Between(from, to, true)

	truncated := false
	if len(starts) > e.maxOccurrences {
		starts = starts[:e.maxOccurrences]
		truncated = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		out = append(out, e.occurrence(series, start, duration))
	}
	return out, truncated, nil
}

func (e *Engine) anchor(series Series) time.Time {
	if !series.AllDay {
		return series.Start
	}
	y, m, d := series.Start.In(e.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.location)
}

func (e *Engine) occurrence(series Series, start time.Time, duration time.Duration) Occurrence {
	occ := Occurrence{EventID: series.EventID, Start: start}
	if series.End != nil {
		end := start.Add(duration)
		occ.End = &end
	}
	return occ
}

func normalizeRule(rule string) string {
	trimmed := strings.TrimSpace(rule)
	if len(trimmed) >= len("RRULE:") && strings.EqualFold(trimmed[:len("RRULE:")], "RRULE:") {
		trimmed = trimmed[len("RRULE:"):]
	}
	return strings.TrimSpace(trimmed)
}
