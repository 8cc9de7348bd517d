package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/persistence/sqlite"
	"github.com/example/campus-events/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated in-memory database for integration tests.
type SQLiteHarness struct {
	Store *sqlite.Store
}

// NewSQLiteHarness opens a fresh database and closes it when tb finishes.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	store, err := sqlite.Open(context.Background(), migration.InMemorySQLiteConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return &SQLiteHarness{Store: store}
}

// SeedUsers inserts users directly, bypassing registration.
func (h *SQLiteHarness) SeedUsers(tb testing.TB, users ...persistence.User) {
	tb.Helper()
	for _, user := range users {
		if err := h.Store.Users.CreateUser(context.Background(), user); err != nil {
			tb.Fatalf("seed user %s: %v", user.ID, err)
		}
	}
}

// SeedProfiles inserts tracked accounts.
func (h *SQLiteHarness) SeedProfiles(tb testing.TB, profiles ...persistence.Profile) {
	tb.Helper()
	for _, profile := range profiles {
		if err := h.Store.Profiles.UpsertProfile(context.Background(), profile); err != nil {
			tb.Fatalf("seed profile %s: %v", profile.Username, err)
		}
	}
}
