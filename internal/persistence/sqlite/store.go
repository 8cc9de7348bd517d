package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/campus-events/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store owns the connection pool and the repositories built on it.
type Store struct {
	pool *ConnectionPool

	Users    *UserRepository
	Sessions *SessionRepository
	Events   *EventRepository
	RSVPs    *RSVPRepository
	Profiles *ProfileRepository
	Posts    *PostRepository
	Classes  *ClassScheduleRepository
}

// Open connects to the database described by config and applies pending
// migrations before returning.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}

	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(pool.DB()),
		logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{
		pool:     pool,
		Users:    NewUserRepository(pool),
		Sessions: NewSessionRepository(pool),
		Events:   NewEventRepository(pool, logger),
		RSVPs:    NewRSVPRepository(pool),
		Profiles: NewProfileRepository(pool),
		Posts:    NewPostRepository(pool),
		Classes:  NewClassScheduleRepository(pool),
	}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	return s.pool.Close()
}
