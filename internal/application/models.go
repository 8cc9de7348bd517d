package application

import (
	"time"

	"github.com/example/campus-events/internal/calendar"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// SystemPrincipal acts on behalf of background jobs such as post extraction.
var SystemPrincipal = Principal{IsAdmin: true}

// User represents a student or organizer account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Grade       int
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// RegisterParams captures the data required to create an account.
type RegisterParams struct {
	Email       string
	DisplayName string
	Password    string
	Grade       int
}

// UserInput captures the profile fields a user or administrator may change.
type UserInput struct {
	DisplayName string
	Grade       int
	IsAdmin     bool
}

// UpdateUserParams wraps the data required to update a user.
type UpdateUserParams struct {
	Principal Principal
	UserID    string
	Input     UserInput
}

// Session represents an authenticated session issued to a user.
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

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// RefreshSessionParams captures the data required to refresh an existing session.
type RefreshSessionParams struct {
	Token       string
	Fingerprint string
}

// RefreshSessionResult captures the outcome of rotating a session token.
type RefreshSessionResult struct {
	Session Session
}

// EventType describes how attendees join an event.
type EventType string

const (
	EventTypeInPerson EventType = "in-person"
	EventTypeVirtual  EventType = "virtual"
	EventTypeHybrid   EventType = "hybrid"
)

// EventStatus marks whether an event still takes place.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
)

// Categories lists the accepted event categories. Anything else is stored as "event".
var Categories = []string{"event", "club", "sport", "deadline", "meeting"}

// Event is a campus event. Start and End are nil for undated events.
type Event struct {
	ID           string
	Name         string
	Description  string
	Start        *time.Time
	End          *time.Time
	AllDay       bool
	LocationName string
	Address      string
	URL          string
	Type         EventType
	Status       EventStatus
	OrganizerID  string
	CreatedBy    string
	PostID       string
	ImagePath    string
	Recurrence   string
	Categories   []string
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Name         string
	Description  string
	Start        *time.Time
	End          *time.Time
	AllDay       bool
	LocationName string
	Address      string
	URL          string
	Type         string
	Status       string
	OrganizerID  string
	PostID       string
	ImagePath    string
	Recurrence   string
	Categories   []string
	Tags         []string
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an existing event.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Input     EventInput
}

// EventFilter narrows event listings. Zero values do not filter.
type EventFilter struct {
	From             *time.Time
	To               *time.Time
	Category         string
	Tag              string
	Query            string
	OrganizerID      string
	CreatedBy        string
	IncludeUndated   bool
	IncludeCancelled bool
	Limit            int
}

// TrendingEvent pairs an upcoming event with its RSVP count.
type TrendingEvent struct {
	Event     Event
	RSVPCount int
}

// RSVPStatus is a user's attendance intent.
type RSVPStatus string

const (
	RSVPGoing      RSVPStatus = "going"
	RSVPInterested RSVPStatus = "interested"
)

// RSVP records a user's intent to attend an event.
type RSVP struct {
	EventID   string
	UserID    string
	Status    RSVPStatus
	CreatedAt time.Time
}

// UserRSVP pairs an RSVP with the event it refers to.
type UserRSVP struct {
	RSVP  RSVP
	Event Event
}

// SetRSVPParams wraps the data required to RSVP to an event.
type SetRSVPParams struct {
	Principal Principal
	EventID   string
	Status    string
}

// ConflictWarning describes another event the user is going to that overlaps.
type ConflictWarning struct {
	EventID   string
	EventName string
	Type      string
}

// SetRSVPResult reports the stored RSVP and any overlap with the user's other plans.
type SetRSVPResult struct {
	RSVP     RSVP
	Warnings []ConflictWarning
}

// CalendarViewParams selects the calendar period to render.
type CalendarViewParams struct {
	// Reference anchors the period. The zero value means now.
	Reference time.Time
	Mode      string
	// Navigate is applied after Reference: "prev", "next" or "today".
	Navigate string
	Selected string
	Location *time.Location
	Category string
	Tag      string
}

// CalendarView is a rendered month or week grid.
type CalendarView struct {
	Mode      calendar.Mode
	Reference time.Time
	Start     time.Time
	End       time.Time
	Today     time.Time
	Prev      time.Time
	Next      time.Time
	Selected  *calendar.DateKey
	Cells     []calendar.Cell
	Undated   []calendar.Event
	// Truncated reports that a recurring event had more occurrences than the cap.
	Truncated bool
}

// ClassEntry is one period of a student's class schedule.
type ClassEntry struct {
	Period     int
	Course     string
	Teacher    string
	Room       string
	CourseKey  string
	TeacherKey string
}

// Classmate is another student sharing a period, course and teacher.
type Classmate struct {
	UserID      string
	DisplayName string
	Grade       int
	Period      int
	Course      string
	Teacher     string
}

// DescribeEventParams captures the organizer's notes for the description assistant.
type DescribeEventParams struct {
	Principal    Principal
	Name         string
	Notes        string
	Start        *time.Time
	LocationName string
}

// EventDraft is a model-suggested title and description.
type EventDraft struct {
	Name        string
	Description string
}

// GenerateImageParams captures the event details used to prompt a cover image.
type GenerateImageParams struct {
	Principal   Principal
	Name        string
	Description string
}

// GeneratedImage locates a stored cover image.
type GeneratedImage struct {
	Bucket string
	Key    string
	Path   string
}
