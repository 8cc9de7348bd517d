// Package ics renders campus events as an iCalendar feed.
package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/campus-events/internal/application"
)

const (
	defaultProductID = "-//campus-events//feed//EN"
	defaultName      = "Campus Events"
	uidDomain        = "campus-events"
)

// Options labels the feed.
type Options struct {
	Name      string
	ProductID string
	// Stamp is written as DTSTAMP on every event. Zero uses time.Now.
	Stamp time.Time
}

// Build converts events into a calendar. Undated and cancelled events are
// left out.
func Build(events []application.Event, opts Options) *ical.Calendar {
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)
	cal.SetName(opts.Name)
	cal.SetXWRCalName(opts.Name)

	for _, event := range events {
		if event.Start == nil || event.Status == application.EventStatusCancelled {
			continue
		}
		addEvent(cal, event, stamp.UTC())
	}
	return cal
}

// Write serializes the feed for events to w.
func Write(w io.Writer, events []application.Event, opts Options) error {
	return Build(events, opts).SerializeTo(w)
}

func addEvent(cal *ical.Calendar, event application.Event, stamp time.Time) {
	ve := cal.AddEvent(event.ID + "@" + uidDomain)
	ve.SetDtStampTime(stamp)
	if !event.CreatedAt.IsZero() {
		ve.SetCreatedTime(event.CreatedAt.UTC())
	}
	if !event.UpdatedAt.IsZero() {
		ve.SetModifiedAt(event.UpdatedAt.UTC())
	}

	start := event.Start.UTC()
	if event.AllDay {
		// DTEND is exclusive for DATE values.
		end := start.AddDate(0, 0, 1)
		if event.End != nil && event.End.UTC().After(start) {
			end = event.End.UTC().AddDate(0, 0, 1)
		}
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
	} else {
		ve.SetStartAt(start)
		if event.End != nil && !event.End.Before(*event.Start) {
			ve.SetEndAt(event.End.UTC())
		}
	}

	name := strings.TrimSpace(event.Name)
	if name == "" {
		name = application.UntitledEventName
	}
	ve.SetSummary(name)
	if event.Description != "" {
		ve.SetDescription(event.Description)
	}
	if location := eventLocation(event); location != "" {
		ve.SetLocation(location)
	}
	if event.URL != "" {
		ve.SetURL(event.URL)
	}
	if rule := strings.TrimSpace(event.Recurrence); rule != "" {
		if len(rule) >= len("RRULE:") && strings.EqualFold(rule[:len("RRULE:")], "RRULE:") {
			rule = rule[len("RRULE:"):]
		}
		ve.AddRrule(rule)
	}
	for _, category := range event.Categories {
		ve.AddProperty(ical.ComponentPropertyCategories, category)
	}
}

func eventLocation(event application.Event) string {
	name := strings.TrimSpace(event.LocationName)
	address := strings.TrimSpace(event.Address)
	switch {
	case name == "":
		return address
	case address == "" || strings.EqualFold(name, address):
		return name
	default:
		return name + ", " + address
	}
}
