package persistence

import "time"

// User represents a student or organizer account.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	Grade        int
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// Event is a stored campus event. StartAt and EndAt are nil for undated events.
type Event struct {
	ID           string
	Name         string
	Description  string
	StartAt      *time.Time
	EndAt        *time.Time
	IsAllDay     bool
	LocationName string
	Address      string
	URL          string
	Type         string
	Status       string
	OrganizerID  *string
	CreatedBy    *string
	PostID       *string
	ImagePath    string
	Recurrence   string
	Categories   []string
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventFilter narrows event queries. Zero values do not filter.
type EventFilter struct {
	// From and To select events whose start falls in [From, To). Recurring
	// events that started before To are included regardless of From.
	From           *time.Time
	To             *time.Time
	Category       string
	Tag            string
	Query          string
	OrganizerID    string
	CreatedBy      string
	IncludeUndated bool
	// IncludeCancelled returns cancelled events as well as active ones.
	IncludeCancelled bool
	Limit            int
}

// TrendingEvent pairs an event with its RSVP count.
type TrendingEvent struct {
	Event     Event
	RSVPCount int
}

// RSVP records a user's intent to attend an event.
type RSVP struct {
	EventID   string
	UserID    string
	Status    string
	CreatedAt time.Time
}

// Profile is a tracked Instagram account.
type Profile struct {
	ID                string
	Username          string
	FullName          string
	Bio               string
	Followers         int
	IsVerified        bool
	IsPrivate         bool
	MediaCount        int
	ProfilePicURL     string
	LastSeenShortcode string
	LastUpdated       *time.Time
	CreatedAt         time.Time
}

// Post is a scraped Instagram post awaiting or past extraction.
type Post struct {
	ID          string
	Shortcode   string
	ProfileID   string
	CaptionPath string
	PostedAt    time.Time
	Processed   bool
	ImagePaths  []string
	CreatedAt   time.Time
}

// ClassEntry is one period of a student's class schedule. CourseKey and
// TeacherKey hold normalized values used for matching.
type ClassEntry struct {
	UserID     string
	Period     int
	Course     string
	Teacher    string
	Room       string
	CourseKey  string
	TeacherKey string
}

// ClassmateMatch is another student sharing a period, course and teacher.
type ClassmateMatch struct {
	UserID      string
	DisplayName string
	Grade       int
	Period      int
	Course      string
	Teacher     string
}
