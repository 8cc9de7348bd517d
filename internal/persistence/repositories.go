package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error)
}

// EventRepository stores events with their categories and tags.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
	DeleteExtractedEvents(ctx context.Context) (int64, error)
	ListTrending(ctx context.Context, from, to time.Time, limit int) ([]TrendingEvent, error)
}

// RSVPRepository stores attendance intents.
type RSVPRepository interface {
	UpsertRSVP(ctx context.Context, rsvp RSVP) error
	DeleteRSVP(ctx context.Context, eventID, userID string) error
	ListRSVPsForUser(ctx context.Context, userID string) ([]RSVP, error)
}

// ProfileRepository stores tracked Instagram accounts.
type ProfileRepository interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id string) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
}

// PostRepository stores scraped posts.
type PostRepository interface {
	CreatePost(ctx context.Context, post Post) error
	PostExists(ctx context.Context, shortcode string) (bool, error)
	ListUnprocessedPosts(ctx context.Context, limit int) ([]Post, error)
	MarkPostProcessed(ctx context.Context, id string) error
	ResetProcessed(ctx context.Context) (int64, error)
}

// ClassScheduleRepository stores class schedules and answers classmate queries.
type ClassScheduleRepository interface {
	ReplaceClassSchedule(ctx context.Context, userID string, entries []ClassEntry) error
	ListClassSchedule(ctx context.Context, userID string) ([]ClassEntry, error)
	FindClassmates(ctx context.Context, userID string) ([]ClassmateMatch, error)
}
