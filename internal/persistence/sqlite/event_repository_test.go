package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestEventRepository_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	creator := seedUser(t, store, "user1", "a@example.com")

	start := mustTime(t, "2024-03-10T17:00:00Z")
	event := persistence.Event{
		ID:           "ev1",
		Name:         "Robotics Kickoff",
		Description:  "First meeting",
		StartAt:      timePtr(start),
		EndAt:        timePtr(start.Add(2 * time.Hour)),
		LocationName: "Room 204",
		CreatedBy:    &creator.ID,
		Categories:   []string{"club", "meeting"},
		Tags:         []string{"robotics", "stem"},
	}
	if err := store.Events.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	got, err := store.Events.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Type != "in-person" || got.Status != "active" {
		t.Fatalf("expected defaults, got type=%q status=%q", got.Type, got.Status)
	}
	if !got.StartAt.Equal(start) || got.EndAt == nil {
		t.Fatalf("unexpected times: %v %v", got.StartAt, got.EndAt)
	}
	if len(got.Categories) != 2 || got.Categories[0] != "club" || got.Categories[1] != "meeting" {
		t.Fatalf("unexpected categories: %v", got.Categories)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "robotics" || got.Tags[1] != "stem" {
		t.Fatalf("unexpected tags: %v", got.Tags)
	}
	if got.CreatedBy == nil || *got.CreatedBy != "user1" {
		t.Fatalf("unexpected creator: %v", got.CreatedBy)
	}

	t.Run("unknown category rolls back", func(t *testing.T) {
		bad := event
		bad.ID = "ev2"
		bad.Categories = []string{"party"}
		if err := store.Events.CreateEvent(ctx, bad); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
		if _, err := store.Events.GetEvent(ctx, "ev2"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("event should not exist, got %v", err)
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		bad := event
		bad.ID = "ev3"
		bad.Type = "carrier-pigeon"
		if err := store.Events.CreateEvent(ctx, bad); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestEventRepository_UpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := persistence.Event{
		ID:         "ev1",
		Name:       "Bake Sale",
		Categories: []string{"event"},
		Tags:       []string{"food"},
	}
	if err := store.Events.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	event.Name = "Bake Sale (moved)"
	event.Status = "cancelled"
	event.Categories = []string{"deadline"}
	event.Tags = []string{"fundraiser", "food"}
	if err := store.Events.UpdateEvent(ctx, event); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}

	got, err := store.Events.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Name != "Bake Sale (moved)" || got.Status != "cancelled" {
		t.Fatalf("update not applied: %+v", got)
	}
	if len(got.Categories) != 1 || got.Categories[0] != "deadline" {
		t.Fatalf("unexpected categories: %v", got.Categories)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "fundraiser" {
		t.Fatalf("unexpected tags: %v", got.Tags)
	}
	if got.StartAt != nil {
		t.Fatalf("expected undated event")
	}

	if err := store.Events.DeleteEvent(ctx, "ev1"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if err := store.Events.DeleteEvent(ctx, "ev1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	missing := event
	missing.ID = "ghost"
	if err := store.Events.UpdateEvent(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventRepository_ListEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	march := mustTime(t, "2024-03-01T00:00:00Z")
	april := mustTime(t, "2024-04-01T00:00:00Z")
	events := []persistence.Event{
		{ID: "a", Name: "Chess Club", StartAt: timePtr(march.Add(48 * time.Hour)), Categories: []string{"club"}, Tags: []string{"Games"}},
		{ID: "b", Name: "Track Meet", StartAt: timePtr(march.Add(24 * time.Hour)), Categories: []string{"sport"}},
		{ID: "c", Name: "Weekly Standup", StartAt: timePtr(march.Add(-30 * 24 * time.Hour)), Recurrence: "FREQ=WEEKLY"},
		{ID: "d", Name: "Spring Fair", StartAt: timePtr(april.Add(24 * time.Hour))},
		{ID: "e", Name: "Someday 100% Fun", Description: "date tba"},
		{ID: "f", Name: "Cancelled Dance", StartAt: timePtr(march.Add(72 * time.Hour)), Status: "cancelled"},
	}
	for _, event := range events {
		if err := store.Events.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent %s: %v", event.ID, err)
		}
	}

	ids := func(list []persistence.Event) []string {
		out := make([]string, len(list))
		for i, event := range list {
			out[i] = event.ID
		}
		return out
	}
	assertIDs := func(t *testing.T, filter persistence.EventFilter, want ...string) {
		t.Helper()
		got, err := store.Events.ListEvents(ctx, filter)
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		gotIDs := ids(got)
		if len(gotIDs) != len(want) {
			t.Fatalf("expected %v, got %v", want, gotIDs)
		}
		for i := range want {
			if gotIDs[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, gotIDs)
			}
		}
	}

	t.Run("window includes recurring series", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{From: &march, To: &april}, "c", "b", "a")
	})
	t.Run("undated appended last", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{From: &march, To: &april, IncludeUndated: true}, "c", "b", "a", "e")
	})
	t.Run("cancelled on request", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{From: &march, To: &april, IncludeCancelled: true}, "c", "b", "a", "f")
	})
	t.Run("category", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{Category: "Sport"}, "b")
	})
	t.Run("tag is case insensitive", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{Tag: "games"}, "a")
	})
	t.Run("query escapes wildcards", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{Query: "100%", IncludeUndated: true}, "e")
	})
	t.Run("limit", func(t *testing.T) {
		assertIDs(t, persistence.EventFilter{Limit: 2}, "c", "b")
	})
}

func TestEventRepository_ListTrending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", "1@example.com")
	seedUser(t, store, "u2", "2@example.com")

	from := mustTime(t, "2024-03-01T00:00:00Z")
	to := from.Add(7 * 24 * time.Hour)
	for _, event := range []persistence.Event{
		{ID: "quiet", Name: "Quiet", StartAt: timePtr(from.Add(time.Hour))},
		{ID: "busy", Name: "Busy", StartAt: timePtr(from.Add(2 * time.Hour))},
		{ID: "later", Name: "Later", StartAt: timePtr(to.Add(time.Hour))},
	} {
		if err := store.Events.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent %s: %v", event.ID, err)
		}
	}
	for _, rsvp := range []persistence.RSVP{
		{EventID: "busy", UserID: "u1", Status: "going"},
		{EventID: "busy", UserID: "u2", Status: "interested"},
		{EventID: "later", UserID: "u1", Status: "going"},
	} {
		if err := store.RSVPs.UpsertRSVP(ctx, rsvp); err != nil {
			t.Fatalf("UpsertRSVP: %v", err)
		}
	}

	trending, err := store.Events.ListTrending(ctx, from, to, 5)
	if err != nil {
		t.Fatalf("ListTrending failed: %v", err)
	}
	if len(trending) != 2 {
		t.Fatalf("expected 2 trending events, got %d", len(trending))
	}
	if trending[0].Event.ID != "busy" || trending[0].RSVPCount != 2 {
		t.Fatalf("unexpected first entry: %+v", trending[0])
	}
	if trending[1].Event.ID != "quiet" || trending[1].RSVPCount != 0 {
		t.Fatalf("unexpected second entry: %+v", trending[1])
	}
}

func TestEventRepository_UnparsableTimesListAsUndated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := mustTime(t, "2024-03-12T15:00:00Z")
	for _, event := range []persistence.Event{
		{ID: "good", Name: "Debate practice", StartAt: timePtr(start), EndAt: timePtr(start.Add(time.Hour))},
		{ID: "bad", Name: "Bake sale", StartAt: timePtr(start.Add(time.Hour)), EndAt: timePtr(start.Add(2 * time.Hour))},
	} {
		if err := store.Events.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent %s: %v", event.ID, err)
		}
	}
	if _, err := store.pool.DB().ExecContext(ctx, `UPDATE events SET start_at = 'next tuesday', end_at = '??' WHERE id = 'bad'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	events, err := store.Events.ListEvents(ctx, persistence.EventFilter{IncludeUndated: true})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected both events, got %d", len(events))
	}
	byID := make(map[string]persistence.Event, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}
	if got := byID["good"]; got.StartAt == nil || !got.StartAt.Equal(start) {
		t.Fatalf("expected the valid event to keep its start, got %+v", got.StartAt)
	}
	if got := byID["bad"]; got.StartAt != nil || got.EndAt != nil {
		t.Fatalf("expected unparsable times to read as absent, got %v %v", got.StartAt, got.EndAt)
	}

	got, err := store.Events.GetEvent(ctx, "bad")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.StartAt != nil {
		t.Fatalf("expected GetEvent to read the start as absent, got %v", got.StartAt)
	}
}
