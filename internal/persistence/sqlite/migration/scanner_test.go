package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestFSScanner_ScanMigrations(t *testing.T) {
	tests := []struct {
		name          string
		files         fstest.MapFS
		expectedOrder []string
		expectedErr   error
	}{
		{
			name: "orders files by numeric version",
			files: fstest.MapFS{
				"migrations/010_add_posts.sql":      {Data: []byte("CREATE TABLE posts (id TEXT PRIMARY KEY);")},
				"migrations/002_add_events.sql":     {Data: []byte("CREATE TABLE events (id TEXT PRIMARY KEY);")},
				"migrations/001_initial_schema.sql": {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY);")},
			},
			expectedOrder: []string{"001", "002", "010"},
		},
		{
			name: "ignores non-SQL files and directories",
			files: fstest.MapFS{
				"migrations/001_initial_schema.sql": {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY);")},
				"migrations/README.md":              {Data: []byte("# notes")},
				"migrations/archive/000_old.sql":    {Data: []byte("SELECT 1;")},
			},
			expectedOrder: []string{"001"},
		},
		{
			name: "rejects malformed names",
			files: fstest.MapFS{
				"migrations/initial.sql": {Data: []byte("CREATE TABLE users (id TEXT);")},
			},
			expectedErr: ErrInvalidMigrationFile,
		},
		{
			name: "rejects duplicate versions",
			files: fstest.MapFS{
				"migrations/001_users.sql":  {Data: []byte("CREATE TABLE users (id TEXT);")},
				"migrations/001_events.sql": {Data: []byte("CREATE TABLE events (id TEXT);")},
			},
			expectedErr: ErrDuplicateVersion,
		},
		{
			name: "rejects comment-only files",
			files: fstest.MapFS{
				"migrations/001_empty.sql": {Data: []byte("-- Description: nothing here\n\n")},
			},
			expectedErr: ErrInvalidMigrationFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			migrations, err := NewScanner(tt.files, "migrations").ScanMigrations()
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ScanMigrations returned error: %v", err)
			}
			if len(migrations) != len(tt.expectedOrder) {
				t.Fatalf("expected %d migrations, got %d", len(tt.expectedOrder), len(migrations))
			}
			for i, version := range tt.expectedOrder {
				if migrations[i].Version != version {
					t.Fatalf("position %d: expected version %s, got %s", i, version, migrations[i].Version)
				}
				if migrations[i].Checksum == "" {
					t.Fatalf("expected checksum for %s", migrations[i].FilePath)
				}
			}
		})
	}
}

func TestFSScanner_Description(t *testing.T) {
	files := fstest.MapFS{
		"001_initial_schema.sql": {Data: []byte("-- Description: Create users and sessions\nCREATE TABLE users (id TEXT);")},
		"002_add_event_tags.sql": {Data: []byte("CREATE TABLE event_tags (event_id TEXT, tag TEXT);")},
	}
	migrations, err := NewScanner(files, "").ScanMigrations()
	if err != nil {
		t.Fatalf("ScanMigrations returned error: %v", err)
	}
	if migrations[0].Description != "Create users and sessions" {
		t.Fatalf("expected description from content, got %q", migrations[0].Description)
	}
	if migrations[1].Description != "add event tags" {
		t.Fatalf("expected description from filename, got %q", migrations[1].Description)
	}
}

func TestValidateFileName(t *testing.T) {
	valid := []string{"001_initial.sql", "42_add-index.sql", "0003_x.sql"}
	for _, name := range valid {
		if err := ValidateFileName(name); err != nil {
			t.Fatalf("expected %s to be valid, got %v", name, err)
		}
	}
	invalid := []string{"initial.sql", "001-initial.sql", "001_.sql", "001_initial.txt", "001_bad name.sql"}
	for _, name := range invalid {
		if err := ValidateFileName(name); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}
