package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

func TestSessionRepository_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user1", "a@example.com")

	expires := mustTime(t, "2024-05-01T12:00:00Z")
	created, err := store.Sessions.CreateSession(ctx, persistence.Session{
		ID:          "s1",
		UserID:      "user1",
		Token:       " token-1 ",
		Fingerprint: "fp",
		ExpiresAt:   expires,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.Token != "token-1" {
		t.Fatalf("expected trimmed token, got %q", created.Token)
	}

	got, err := store.Sessions.GetSession(ctx, "token-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.ExpiresAt.Equal(expires) || got.RevokedAt != nil {
		t.Fatalf("unexpected session: %+v", got)
	}

	got.Token = "token-2"
	got.ExpiresAt = expires.Add(time.Hour)
	if _, err := store.Sessions.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if _, err := store.Sessions.GetSession(ctx, "token-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("old token should be gone, got %v", err)
	}

	revokedAt := mustTime(t, "2024-04-30T08:00:00Z")
	revoked, err := store.Sessions.RevokeSession(ctx, "token-2", revokedAt)
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(revokedAt) {
		t.Fatalf("expected revoked_at %v, got %v", revokedAt, revoked.RevokedAt)
	}

	if _, err := store.Sessions.RevokeSession(ctx, "missing", revokedAt); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_DeleteExpiredSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user1", "a@example.com")

	reference := mustTime(t, "2024-05-01T00:00:00Z")
	sessions := []persistence.Session{
		{ID: "old", UserID: "user1", Token: "old", ExpiresAt: reference.Add(-time.Minute)},
		{ID: "edge", UserID: "user1", Token: "edge", ExpiresAt: reference},
		{ID: "live", UserID: "user1", Token: "live", ExpiresAt: reference.Add(time.Minute)},
	}
	for _, session := range sessions {
		if _, err := store.Sessions.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession %s: %v", session.ID, err)
		}
	}

	removed, err := store.Sessions.DeleteExpiredSessions(ctx, reference)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := store.Sessions.GetSession(ctx, "live"); err != nil {
		t.Fatalf("live session should remain: %v", err)
	}
}
