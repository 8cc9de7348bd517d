package calendar

import (
	"strings"
	"time"
)

// Mode selects the grid layout.
type Mode string

const (
	// ModeMonth renders six Sunday-first weeks covering the reference month.
	ModeMonth Mode = "month"
	// ModeWeek renders the Sunday-first week containing the reference date.
	ModeWeek Mode = "week"
)

const (
	monthCells = 42
	weekCells  = 7
)

// ParseMode maps user input to a Mode. Anything unrecognised is ModeMonth.
func ParseMode(value string) Mode {
	if strings.EqualFold(strings.TrimSpace(value), string(ModeWeek)) {
		return ModeWeek
	}
	return ModeMonth
}

// Cell is one day of a rendered grid.
type Cell struct {
	Date     time.Time
	Key      DateKey
	InPeriod bool
	IsToday  bool
	Events   []Event
}

// BuildWindow lays out the grid for reference in the given mode.
//
// Cell dates are midnights in reference's location. today is converted to
// that location and compared by calendar day only. Days without a bucket get an empty, non-nil event list.
func BuildWindow(reference time.Time, mode Mode, today time.Time, buckets Buckets) []Cell {
	start, size := windowStart(reference, mode)
	todayKey := KeyOf(today.In(start.Location()))

	cells := make([]Cell, 0, size)
	for i := 0; i < size; i++ {
		date := time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, start.Location())
		key := KeyOf(date)

		inPeriod := true
		if mode != ModeWeek {
			inPeriod = date.Month() == reference.Month() && date.Year() == reference.Year()
		}

		bucket := buckets[key]
		events := make([]Event, len(bucket))
		copy(events, bucket)

		cells = append(cells, Cell{
			Date:     date,
			Key:      key,
			InPeriod: inPeriod,
			IsToday:  key == todayKey,
			Events:   events,
		})
	}
	return cells
}

// WindowRange returns the half-open interval [start, end) covered by the grid
// for reference in mode.
func WindowRange(reference time.Time, mode Mode) (time.Time, time.Time) {
	start, size := windowStart(reference, mode)
	end := time.Date(start.Year(), start.Month(), start.Day()+size, 0, 0, 0, 0, start.Location())
	return start, end
}

func windowStart(reference time.Time, mode Mode) (time.Time, int) {
	loc := reference.Location()
	if mode == ModeWeek {
		day := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, loc)
		return sundayOnOrBefore(day), weekCells
	}
	first := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, loc)
	return sundayOnOrBefore(first), monthCells
}

func sundayOnOrBefore(day time.Time) time.Time {
	offset := int(day.Weekday())
	return time.Date(day.Year(), day.Month(), day.Day()-offset, 0, 0, 0, 0, day.Location())
}
