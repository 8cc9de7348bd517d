package calendar

import (
	"sort"
	"strings"
	"time"
)

// Bucket groups events by the calendar day of their start in loc.
//
// Events without a start are skipped; see Undated. Each bucket is ordered by
// ascending start and keeps input order for equal starts. A nil loc means
// time.Local.
func Bucket(events []Event, loc *time.Location) Buckets {
	if loc == nil {
		loc = time.Local
	}

	buckets := make(Buckets)
	for _, event := range events {
		if event.Start == nil {
			continue
		}
		key := KeyOf(event.Start.In(loc))
		buckets[key] = append(buckets[key], event)
	}

	for key, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Start.Before(*bucket[j].Start)
		})
		buckets[key] = bucket
	}
	return buckets
}

// Undated returns the events that have no start, in input order.
func Undated(events []Event) []Event {
	var out []Event
	for _, event := range events {
		if event.Start == nil {
			out = append(out, event)
		}
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	dateKeyLayout,
}

// ParseTimestamp converts a raw stored timestamp into a time.
//
// Values without an offset are read as UTC. Empty or unparsable input
// yields nil rather than an error so a single bad row never breaks a view.
func ParseTimestamp(raw string) *time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}
	return nil
}
