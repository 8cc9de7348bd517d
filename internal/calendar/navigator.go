package calendar

import "time"

// Direction is a navigation step.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// Navigator holds the viewed period. It owns the mode so the grid layout and
// the navigation step can never disagree within one render.
type Navigator struct {
	reference time.Time
	mode      Mode
	selected  *DateKey
}

// NewNavigator starts at reference in the given mode.
func NewNavigator(reference time.Time, mode Mode) *Navigator {
	if mode != ModeWeek {
		mode = ModeMonth
	}
	return &Navigator{reference: reference, mode: mode}
}

// Reference returns the date anchoring the current period.
func (n *Navigator) Reference() time.Time { return n.reference }

// Mode returns the active grid mode.
func (n *Navigator) Mode() Mode { return n.mode }

// Selected returns the selected day, if any.
func (n *Navigator) Selected() (DateKey, bool) {
	if n.selected == nil {
		return DateKey{}, false
	}
	return *n.selected, true
}

// GoToToday moves the reference to now. The mode is unchanged.
func (n *Navigator) GoToToday(now time.Time) {
	n.reference = now
}

// Navigate moves one period in dir.
func (n *Navigator) Navigate(dir Direction) {
	n.reference = Step(n.reference, n.mode, dir)
}

// SetMode switches between month and week layouts.
func (n *Navigator) SetMode(mode Mode) {
	if mode != ModeWeek {
		mode = ModeMonth
	}
	n.mode = mode
}

// Select marks a day as selected without moving the period.
func (n *Navigator) Select(day DateKey) {
	n.selected = &day
}

// ClearSelection drops the selected day.
func (n *Navigator) ClearSelection() {
	n.selected = nil
}

// Window builds the grid for the current period.
func (n *Navigator) Window(today time.Time, buckets Buckets) []Cell {
	return BuildWindow(n.reference, n.mode, today, buckets)
}

// Step returns the reference one period away from reference.
//
// Month steps land on the first of the target month, so Jan 31 moves to
// Feb 1 rather than overflowing into March. Week steps move seven days.
func Step(reference time.Time, mode Mode, dir Direction) time.Time {
	if dir == 0 {
		return reference
	}
	if dir > 0 {
		dir = Next
	} else {
		dir = Prev
	}
	if mode == ModeWeek {
		return reference.AddDate(0, 0, 7*int(dir))
	}
	return time.Date(reference.Year(), reference.Month()+time.Month(dir), 1, 0, 0, 0, 0, reference.Location())
}
