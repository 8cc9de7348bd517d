// Package calendar groups events by local calendar date and lays them out on
// month and week grids.
//
// Everything in this package is a pure function of its inputs: the current
// time, the viewer's time zone and the display mode are always supplied by
// the caller. Nothing is cached between calls.
package calendar

import (
	"fmt"
	"sort"
	"time"
)

const dateKeyLayout = "2006-01-02"

// Event is the read model consumed by the bucketing and grid functions.
//
// Start and End are optional. An event without a start never lands in a
// bucket. End before Start is tolerated and left for display code to handle.
type Event struct {
	ID           string
	Name         string
	Start        *time.Time
	End          *time.Time
	AllDay       bool
	LocationName string
	Address      string
	Description  string
	Categories   []string
	Tags         []string
	OrganizerID  string
	Images       []string
}

// DateKey identifies a calendar day independent of clock time and zone.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int
}

// KeyOf returns the calendar day of t in t's own location.
func KeyOf(t time.Time) DateKey {
	y, m, d := t.Date()
	return DateKey{Year: y, Month: m, Day: d}
}

// ParseDateKey parses a YYYY-MM-DD string.
func ParseDateKey(value string) (DateKey, error) {
	t, err := time.Parse(dateKeyLayout, value)
	if err != nil {
		return DateKey{}, fmt.Errorf("calendar: invalid date %q: %w", value, err)
	}
	return KeyOf(t), nil
}

// String renders the key as YYYY-MM-DD.
func (k DateKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// Midnight returns the first instant of the day in loc.
func (k DateKey) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, loc)
}

// Before reports whether k is an earlier day than other.
func (k DateKey) Before(other DateKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	if k.Month != other.Month {
		return k.Month < other.Month
	}
	return k.Day < other.Day
}

// Buckets maps a calendar day to the events starting on it, ordered by start.
type Buckets map[DateKey][]Event

// Keys returns the bucket keys in chronological order.
func (b Buckets) Keys() []DateKey {
	keys := make([]DateKey, 0, len(b))
	for key := range b {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
