package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/persistence"
)

var (
	userCounter    uint64
	eventCounter   uint64
	profileCounter uint64
	postCounter    uint64
)

var referenceTime = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

// ReferenceTime is the baseline "now" used by fixtures: Sunday 10 March 2024, noon UTC.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns a grade 10 student with a unique id and email.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	user := persistence.User{
		ID:           id,
		Email:        id + "@school.test",
		DisplayName:  fmt.Sprintf("Student %03d", idx),
		Grade:        10,
		PasswordHash: "hash-" + id,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) { u.Email = email }
}

func WithUserGrade(grade int) UserOption {
	return func(u *persistence.User) { u.Grade = grade }
}

func WithUserAdmin() UserOption {
	return func(u *persistence.User) { u.IsAdmin = true }
}

// ----------------------------- Event fixtures -----------------------------

// EventOption configures a generated event.
type EventOption func(*application.Event)

// NewEvent returns an active in-person club event starting one day after
// ReferenceTime and lasting an hour.
func NewEvent(opts ...EventOption) application.Event {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.AddDate(0, 0, 1)
	end := start.Add(time.Hour)
	event := application.Event{
		ID:           fmt.Sprintf("event-%03d", idx),
		Name:         fmt.Sprintf("Club meeting %d", idx),
		Start:        &start,
		End:          &end,
		LocationName: "Room 101",
		Type:         application.EventTypeInPerson,
		Status:       application.EventStatusActive,
		Categories:   []string{"club"},
		Tags:         []string{},
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

func WithEventID(id string) EventOption {
	return func(e *application.Event) { e.ID = id }
}

func WithEventName(name string) EventOption {
	return func(e *application.Event) { e.Name = name }
}

// WithEventTimes sets start and end. A zero end leaves End nil.
func WithEventTimes(start, end time.Time) EventOption {
	return func(e *application.Event) {
		e.Start = &start
		e.End = nil
		if !end.IsZero() {
			e.End = &end
		}
	}
}

// WithEventAllDay marks the event as all-day on the given date.
func WithEventAllDay(day time.Time) EventOption {
	return func(e *application.Event) {
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		e.Start = &midnight
		e.End = nil
		e.AllDay = true
	}
}

// WithEventUndated clears both times.
func WithEventUndated() EventOption {
	return func(e *application.Event) {
		e.Start = nil
		e.End = nil
	}
}

func WithEventLabels(categories, tags []string) EventOption {
	return func(e *application.Event) {
		e.Categories = categories
		e.Tags = tags
	}
}

func WithEventRecurrence(rule string) EventOption {
	return func(e *application.Event) { e.Recurrence = rule }
}

func WithEventCreator(userID string) EventOption {
	return func(e *application.Event) { e.CreatedBy = userID }
}

// --------------------------- Instagram fixtures ---------------------------

// NewProfile returns a tracked public account that has never been crawled.
func NewProfile(username string) persistence.Profile {
	idx := atomic.AddUint64(&profileCounter, 1)
	if username == "" {
		username = fmt.Sprintf("club%d", idx)
	}
	return persistence.Profile{
		ID:        fmt.Sprintf("profile-%03d", idx),
		Username:  username,
		CreatedAt: referenceTime,
	}
}

// NewPost returns an unprocessed post of profile with one stored image.
func NewPost(profile persistence.Profile, shortcode string) persistence.Post {
	idx := atomic.AddUint64(&postCounter, 1)
	if shortcode == "" {
		shortcode = fmt.Sprintf("SC%03d", idx)
	}
	return persistence.Post{
		ID:          fmt.Sprintf("post-%03d", idx),
		Shortcode:   shortcode,
		ProfileID:   profile.ID,
		CaptionPath: "instagram_posts/" + shortcode + "/caption.txt",
		PostedAt:    referenceTime.Add(-time.Duration(idx) * time.Hour),
		ImagePaths:  []string{"instagram_posts/" + shortcode + "/image_1.jpg"},
		CreatedAt:   referenceTime,
	}
}
