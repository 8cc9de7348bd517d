package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"
)

type mockScanner struct {
	migrations []Migration
	scanError  error
}

func (m *mockScanner) ScanMigrations() ([]Migration, error) {
	if m.scanError != nil {
		return nil, m.scanError
	}
	return m.migrations, nil
}

type mockExecutor struct {
	applied        []AppliedMigration
	executionError error
	recordError    error
	initError      error
	executionOrder []string
}

func (m *mockExecutor) ExecuteMigration(ctx context.Context, migration Migration) error {
	m.executionOrder = append(m.executionOrder, migration.Version)
	return m.executionError
}

func (m *mockExecutor) InitializeVersionTable(ctx context.Context) error {
	return m.initError
}

func (m *mockExecutor) RecordMigration(ctx context.Context, migration Migration, executionTime time.Duration) error {
	if m.recordError != nil {
		return m.recordError
	}
	m.applied = append(m.applied, AppliedMigration{Version: migration.Version, Checksum: migration.Checksum})
	return nil
}

func (m *mockExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	return m.applied, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_RunMigrations(t *testing.T) {
	ctx := context.Background()
	available := []Migration{
		{Version: "001", Description: "initial schema", SQL: "CREATE TABLE users (id TEXT);", Checksum: "a"},
		{Version: "002", Description: "events", SQL: "CREATE TABLE events (id TEXT);", Checksum: "b"},
		{Version: "003", Description: "posts", SQL: "CREATE TABLE posts (id TEXT);", Checksum: "c"},
	}

	t.Run("executes pending migrations in order", func(t *testing.T) {
		executor := &mockExecutor{applied: []AppliedMigration{{Version: "001", Checksum: "a"}}}
		manager := NewManager(&mockScanner{migrations: available}, executor, quietLogger())

		if err := manager.RunMigrations(ctx); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}
		if len(executor.executionOrder) != 2 || executor.executionOrder[0] != "002" || executor.executionOrder[1] != "003" {
			t.Fatalf("unexpected execution order: %v", executor.executionOrder)
		}

		executor.executionOrder = nil
		if err := manager.RunMigrations(ctx); err != nil {
			t.Fatalf("second RunMigrations failed: %v", err)
		}
		if len(executor.executionOrder) != 0 {
			t.Fatalf("expected idempotent second run, executed %v", executor.executionOrder)
		}
	})

	t.Run("wraps execution failures", func(t *testing.T) {
		executor := &mockExecutor{executionError: errors.New("syntax error")}
		manager := NewManager(&mockScanner{migrations: available}, executor, quietLogger())

		err := manager.RunMigrations(ctx)
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}
		var migrationErr *MigrationError
		if !errors.As(err, &migrationErr) || migrationErr.Version != "001" {
			t.Fatalf("expected MigrationError for 001, got %v", err)
		}
	})

	t.Run("stops when recording fails", func(t *testing.T) {
		executor := &mockExecutor{recordError: errors.New("disk full")}
		manager := NewManager(&mockScanner{migrations: available}, executor, quietLogger())

		if err := manager.RunMigrations(ctx); err == nil {
			t.Fatalf("expected error when recording fails")
		}
		if len(executor.executionOrder) != 1 {
			t.Fatalf("expected to stop after the first migration, executed %v", executor.executionOrder)
		}
	})

	t.Run("propagates initialization errors", func(t *testing.T) {
		manager := NewManager(&mockScanner{migrations: available}, &mockExecutor{initError: errors.New("locked")}, quietLogger())
		if err := manager.RunMigrations(ctx); err == nil {
			t.Fatalf("expected initialization error")
		}
	})
}

func TestManager_PendingMigrations_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("detects gaps", func(t *testing.T) {
		scanner := &mockScanner{migrations: []Migration{{Version: "001"}, {Version: "003"}}}
		_, err := NewManager(scanner, &mockExecutor{}, quietLogger()).PendingMigrations(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("detects applied versions without files", func(t *testing.T) {
		scanner := &mockScanner{migrations: []Migration{{Version: "001"}}}
		executor := &mockExecutor{applied: []AppliedMigration{{Version: "001"}, {Version: "002"}}}
		_, err := NewManager(scanner, executor, quietLogger()).PendingMigrations(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("detects edited migrations", func(t *testing.T) {
		scanner := &mockScanner{migrations: []Migration{{Version: "001", Checksum: "new"}}}
		executor := &mockExecutor{applied: []AppliedMigration{{Version: "001", Checksum: "old"}}}
		_, err := NewManager(scanner, executor, quietLogger()).PendingMigrations(ctx)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})

	t.Run("propagates scan errors", func(t *testing.T) {
		scanner := &mockScanner{scanError: ErrInvalidMigrationFile}
		_, err := NewManager(scanner, &mockExecutor{}, quietLogger()).PendingMigrations(ctx)
		if !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected scan error, got %v", err)
		}
	})
}

func TestManager_RealDatabase(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	files := fstest.MapFS{
		"001_users.sql":  {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE);")},
		"002_events.sql": {Data: []byte("CREATE TABLE events (id TEXT PRIMARY KEY, created_by TEXT REFERENCES users(id));\nCREATE INDEX idx_events_created_by ON events(created_by);")},
	}
	manager := NewManager(NewScanner(files, "."), NewSQLiteExecutor(db), quietLogger())

	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if !tableExists(t, db, "events") {
		t.Fatalf("expected events table")
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentVersion != "002" || status.PendingCount != 0 || len(status.AppliedMigrations) != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
}
