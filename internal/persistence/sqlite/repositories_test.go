package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

func TestRSVPRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", "1@example.com")
	for _, id := range []string{"ev1", "ev2"} {
		if err := store.Events.CreateEvent(ctx, persistence.Event{ID: id, Name: id}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	first := mustTime(t, "2024-03-01T10:00:00Z")
	if err := store.RSVPs.UpsertRSVP(ctx, persistence.RSVP{EventID: "ev1", UserID: "u1", Status: "interested", CreatedAt: first}); err != nil {
		t.Fatalf("UpsertRSVP: %v", err)
	}
	if err := store.RSVPs.UpsertRSVP(ctx, persistence.RSVP{EventID: "ev2", UserID: "u1", Status: "going", CreatedAt: first.Add(time.Hour)}); err != nil {
		t.Fatalf("UpsertRSVP: %v", err)
	}
	if err := store.RSVPs.UpsertRSVP(ctx, persistence.RSVP{EventID: "ev1", UserID: "u1", Status: "going", CreatedAt: first.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("UpsertRSVP update: %v", err)
	}

	rsvps, err := store.RSVPs.ListRSVPsForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRSVPsForUser: %v", err)
	}
	if len(rsvps) != 2 || rsvps[0].EventID != "ev2" || rsvps[1].EventID != "ev1" {
		t.Fatalf("unexpected rsvps: %+v", rsvps)
	}
	if rsvps[1].Status != "going" || !rsvps[1].CreatedAt.Equal(first) {
		t.Fatalf("upsert should change status and keep created_at: %+v", rsvps[1])
	}

	if err := store.RSVPs.UpsertRSVP(ctx, persistence.RSVP{EventID: "ev1", UserID: "u1", Status: "maybe"}); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for bad status, got %v", err)
	}
	if err := store.RSVPs.UpsertRSVP(ctx, persistence.RSVP{EventID: "nope", UserID: "u1", Status: "going"}); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	if err := store.RSVPs.DeleteRSVP(ctx, "ev1", "u1"); err != nil {
		t.Fatalf("DeleteRSVP: %v", err)
	}
	if err := store.RSVPs.DeleteRSVP(ctx, "ev1", "u1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileAndPostRepositories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profile := persistence.Profile{ID: "p1", Username: "@asb_official", FullName: "ASB"}
	if err := store.Profiles.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	seen := mustTime(t, "2024-03-02T00:00:00Z")
	profile.Username = "asb_official"
	profile.LastSeenShortcode = "Cabc"
	profile.Followers = 1200
	profile.LastUpdated = &seen
	if err := store.Profiles.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile update: %v", err)
	}

	got, err := store.Profiles.GetProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Username != "asb_official" || got.LastSeenShortcode != "Cabc" || got.Followers != 1200 {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(seen) {
		t.Fatalf("unexpected last_updated: %v", got.LastUpdated)
	}
	profiles, err := store.Profiles.ListProfiles(ctx)
	if err != nil || len(profiles) != 1 {
		t.Fatalf("ListProfiles: %v %v", profiles, err)
	}

	older := persistence.Post{
		ID: "post1", Shortcode: "Cold", ProfileID: "p1", CaptionPath: "Cold/caption.txt",
		PostedAt: mustTime(t, "2024-03-01T00:00:00Z"), ImagePaths: []string{"Cold/image_0.jpg", "Cold/image_1.jpg"},
	}
	newer := persistence.Post{
		ID: "post2", Shortcode: "Cnew", ProfileID: "p1", CaptionPath: "Cnew/caption.txt",
		PostedAt: mustTime(t, "2024-03-05T00:00:00Z"),
	}
	for _, post := range []persistence.Post{newer, older} {
		if err := store.Posts.CreatePost(ctx, post); err != nil {
			t.Fatalf("CreatePost %s: %v", post.ID, err)
		}
	}
	dup := older
	dup.ID = "post3"
	if err := store.Posts.CreatePost(ctx, dup); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	exists, err := store.Posts.PostExists(ctx, "Cold")
	if err != nil || !exists {
		t.Fatalf("PostExists = %v, %v", exists, err)
	}

	pending, err := store.Posts.ListUnprocessedPosts(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnprocessedPosts: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "post1" {
		t.Fatalf("unexpected pending order: %+v", pending)
	}
	if len(pending[0].ImagePaths) != 2 || pending[0].ImagePaths[1] != "Cold/image_1.jpg" {
		t.Fatalf("unexpected image paths: %v", pending[0].ImagePaths)
	}

	if err := store.Posts.MarkPostProcessed(ctx, "post1"); err != nil {
		t.Fatalf("MarkPostProcessed: %v", err)
	}
	pending, err = store.Posts.ListUnprocessedPosts(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].ID != "post2" {
		t.Fatalf("expected only post2 pending, got %+v (%v)", pending, err)
	}
	if err := store.Posts.MarkPostProcessed(ctx, "ghost"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassScheduleRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "alice@example.com")
	seedUser(t, store, "bob", "bob@example.com")
	seedUser(t, store, "cara", "cara@example.com")

	schedules := map[string][]persistence.ClassEntry{
		"alice": {
			{Period: 1, Course: "AP Biology", Teacher: "Ms. Lee", CourseKey: "ap biology", TeacherKey: "lee"},
			{Period: 2, Course: "Calculus", Teacher: "Mr. Ray", CourseKey: "calculus", TeacherKey: "ray"},
		},
		"bob": {
			{Period: 1, Course: "AP Bio", Teacher: "Lee", CourseKey: "ap biology", TeacherKey: "lee"},
			{Period: 2, Course: "Calculus", Teacher: "Ms. Kim", CourseKey: "calculus", TeacherKey: "kim"},
		},
		"cara": {
			{Period: 3, Course: "Calculus", Teacher: "Mr. Ray", CourseKey: "calculus", TeacherKey: "ray"},
		},
	}
	for userID, entries := range schedules {
		if err := store.Classes.ReplaceClassSchedule(ctx, userID, entries); err != nil {
			t.Fatalf("ReplaceClassSchedule %s: %v", userID, err)
		}
	}

	matches, err := store.Classes.FindClassmates(ctx, "alice")
	if err != nil {
		t.Fatalf("FindClassmates: %v", err)
	}
	if len(matches) != 1 || matches[0].UserID != "bob" || matches[0].Period != 1 || matches[0].Course != "AP Biology" {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	if err := store.Classes.ReplaceClassSchedule(ctx, "alice", schedules["alice"][1:]); err != nil {
		t.Fatalf("ReplaceClassSchedule: %v", err)
	}
	entries, err := store.Classes.ListClassSchedule(ctx, "alice")
	if err != nil {
		t.Fatalf("ListClassSchedule: %v", err)
	}
	if len(entries) != 1 || entries[0].Period != 2 {
		t.Fatalf("unexpected schedule: %+v", entries)
	}

	bad := []persistence.ClassEntry{{Period: 0, Course: "x", CourseKey: "x"}}
	if err := store.Classes.ReplaceClassSchedule(ctx, "alice", bad); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
	entries, _ = store.Classes.ListClassSchedule(ctx, "alice")
	if len(entries) != 1 {
		t.Fatalf("failed replace should roll back, got %+v", entries)
	}
}

func TestExtractionReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Profiles.UpsertProfile(ctx, persistence.Profile{ID: "p1", Username: "asb_official"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	for _, id := range []string{"post1", "post2"} {
		post := persistence.Post{ID: id, Shortcode: "C" + id, ProfileID: "p1", PostedAt: mustTime(t, "2024-03-01T00:00:00Z")}
		if err := store.Posts.CreatePost(ctx, post); err != nil {
			t.Fatalf("CreatePost %s: %v", id, err)
		}
		if err := store.Posts.MarkPostProcessed(ctx, id); err != nil {
			t.Fatalf("MarkPostProcessed %s: %v", id, err)
		}
	}

	postID := "post1"
	start := mustTime(t, "2024-03-10T17:00:00Z")
	for _, event := range []persistence.Event{
		{ID: "extracted", Name: "Spirit week", StartAt: timePtr(start), PostID: &postID},
		{ID: "entered", Name: "Band concert", StartAt: timePtr(start)},
	} {
		if err := store.Events.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent %s: %v", event.ID, err)
		}
	}

	reset, err := store.Posts.ResetProcessed(ctx)
	if err != nil {
		t.Fatalf("ResetProcessed: %v", err)
	}
	if reset != 2 {
		t.Fatalf("expected 2 posts reset, got %d", reset)
	}
	pending, err := store.Posts.ListUnprocessedPosts(ctx, 0)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected both posts pending, got %+v (%v)", pending, err)
	}
	if again, err := store.Posts.ResetProcessed(ctx); err != nil || again != 0 {
		t.Fatalf("expected a second reset to touch nothing, got %d (%v)", again, err)
	}

	deleted, err := store.Events.DeleteExtractedEvents(ctx)
	if err != nil {
		t.Fatalf("DeleteExtractedEvents: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one extracted event deleted, got %d", deleted)
	}
	if _, err := store.Events.GetEvent(ctx, "extracted"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected extracted event to be gone, got %v", err)
	}
	if _, err := store.Events.GetEvent(ctx, "entered"); err != nil {
		t.Fatalf("expected organizer event to survive, got %v", err)
	}
}
