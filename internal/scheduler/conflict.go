package scheduler

import (
	"sort"
	"time"
)

// DefaultDuration is assumed for timed slots that have no end.
const DefaultDuration = time.Hour

// Slot is an event a student has committed to attend.
type Slot struct {
	EventID string
	Start   *time.Time
	End     *time.Time
	AllDay  bool
}

// ConflictType describes how two slots collide.
type ConflictType string

const (
	// ConflictTypeOverlap indicates two timed slots share part of their interval.
	ConflictTypeOverlap ConflictType = "overlap"
	// ConflictTypeSameDay indicates an all-day slot shares a date with another slot.
	ConflictTypeSameDay ConflictType = "same_day"
)

// Conflict details an overlapping slot that callers can present to users.
type Conflict struct {
	WithEventID string
	Type        ConflictType
}

// DetectConflicts identifies conflicts for the candidate slot against existing ones.
//
// Slots without a start never conflict. All-day slots are compared by
// calendar date in loc. The result is ordered by the existing slot's start.
func DetectConflicts(existing []Slot, candidate Slot, loc *time.Location) []Conflict {
	if candidate.Start == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	ordered := make([]Slot, 0, len(existing))
	for _, slot := range existing {
		if slot.Start == nil || slot.EventID == candidate.EventID {
			continue
		}
		ordered = append(ordered, slot)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(*ordered[j].Start)
	})

	var conflicts []Conflict
	for _, slot := range ordered {
		if candidate.AllDay || slot.AllDay {
			if sameDate(*candidate.Start, *slot.Start, loc) {
				conflicts = append(conflicts, Conflict{WithEventID: slot.EventID, Type: ConflictTypeSameDay})
			}
			continue
		}
		aStart, aEnd := interval(candidate)
		bStart, bEnd := interval(slot)
		if aStart.Before(bEnd) && bStart.Before(aEnd) {
			conflicts = append(conflicts, Conflict{WithEventID: slot.EventID, Type: ConflictTypeOverlap})
		}
	}
	return conflicts
}

func interval(slot Slot) (time.Time, time.Time) {
	start := *slot.Start
	if slot.End == nil || !slot.End.After(start) {
		return start, start.Add(DefaultDuration)
	}
	return start, *slot.End
}

func sameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
