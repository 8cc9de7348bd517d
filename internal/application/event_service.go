package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/example/campus-events/internal/recurrence"
)

const (
	// UntitledEventName is used when an event only carries a description.
	UntitledEventName = "Untitled Event"

	defaultTrendingDays  = 7
	defaultTrendingLimit = 10
)

// EventRepository captures the persistence operations needed by the event service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	ListTrending(ctx context.Context, from, to time.Time, limit int) ([]TrendingEvent, error)
}

// EventService validates and stores campus events.
type EventService struct {
	events      EventRepository
	cache       *EventCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService wires dependencies for event operations. cache may be nil.
func NewEventService(events EventRepository, cache *EventCache, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, cache, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies for event operations with a specific logger.
func NewEventServiceWithLogger(events EventRepository, cache *EventCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		cache:       cache,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates the input and stores a new event owned by the principal.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event Event, err error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "event creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event created", "event_id", event.ID)
	}()

	if params.Principal.UserID == "" && !params.Principal.IsAdmin {
		return Event{}, ErrUnauthorized
	}

	fields, vErr := normalizeEventInput(params.Input)
	if vErr.HasErrors() {
		return Event{}, vErr
	}

	now := s.now()
	event = fields
	event.ID = s.idGenerator()
	event.CreatedBy = params.Principal.UserID
	event.CreatedAt = now
	event.UpdatedAt = now

	event, err = s.events.CreateEvent(ctx, event)
	if err != nil {
		return Event{}, mapRepoError(err, "categories")
	}
	s.cache.Invalidate()
	return event, nil
}

// UpdateEvent replaces the mutable fields of an event. Only its creator or an
// administrator may update it.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event Event, err error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "principal_id", params.Principal.UserID, "event_id", params.EventID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "event update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	existing, err := s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return Event{}, mapRepoError(err, "event_id")
	}
	if !canModify(params.Principal, existing) {
		return Event{}, ErrUnauthorized
	}

	fields, vErr := normalizeEventInput(params.Input)
	if vErr.HasErrors() {
		return Event{}, vErr
	}

	updated := fields
	updated.ID = existing.ID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	if updated.PostID == "" {
		updated.PostID = existing.PostID
	}
	updated.UpdatedAt = s.now()

	event, err = s.events.UpdateEvent(ctx, updated)
	if err != nil {
		return Event{}, mapRepoError(err, "categories")
	}
	s.cache.Invalidate()
	return event, nil
}

// DeleteEvent removes an event and its RSVPs.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	existing, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return mapRepoError(err, "event_id")
	}
	if !canModify(principal, existing) {
		return ErrUnauthorized
	}
	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		return mapRepoError(err, "event_id")
	}
	s.cache.Invalidate()
	s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", eventID).InfoContext(ctx, "event deleted")
	return nil
}

// GetEvent returns a single event.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	event, err := s.events.GetEvent(ctx, strings.TrimSpace(eventID))
	if err != nil {
		return Event{}, mapRepoError(err, "event_id")
	}
	return event, nil
}

// ListEvents returns events matching filter ordered by start, undated last.
func (s *EventService) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return nil, nil
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, fieldError("to", "must be after from")
	}
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	if filter.Tag != "" {
		filter.Tag = NormalizeTag(filter.Tag)
	}
	filter.Query = strings.TrimSpace(filter.Query)

	events, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Trending returns events starting within the next days ordered by RSVP count.
func (s *EventService) Trending(ctx context.Context, days, limit int) ([]TrendingEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return nil, nil
	}
	if days <= 0 {
		days = defaultTrendingDays
	}
	if limit <= 0 {
		limit = defaultTrendingLimit
	}
	from := s.now()
	to := from.AddDate(0, 0, days)
	trending, err := s.events.ListTrending(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	return trending, nil
}

func canModify(principal Principal, event Event) bool {
	if principal.IsAdmin {
		return true
	}
	return principal.UserID != "" && principal.UserID == event.CreatedBy
}

// normalizeEventInput applies defaults and validation shared by create and update.
func normalizeEventInput(input EventInput) (Event, *ValidationError) {
	vErr := &ValidationError{}

	name := strings.TrimSpace(input.Name)
	description := strings.TrimSpace(input.Description)
	if name == "" && description == "" {
		vErr.add("name", "name or description is required")
	}
	if name == "" {
		name = UntitledEventName
	}

	event := Event{
		Name:         name,
		Description:  description,
		AllDay:       input.AllDay,
		LocationName: strings.TrimSpace(input.LocationName),
		Address:      strings.TrimSpace(input.Address),
		URL:          strings.TrimSpace(input.URL),
		Type:         NormalizeEventType(input.Type),
		OrganizerID:  strings.TrimSpace(input.OrganizerID),
		PostID:       strings.TrimSpace(input.PostID),
		ImagePath:    strings.TrimSpace(input.ImagePath),
		Recurrence:   strings.TrimSpace(input.Recurrence),
		Categories:   NormalizeCategories(input.Categories),
		Tags:         NormalizeTags(input.Tags),
	}

	if input.Start != nil {
		start := input.Start.UTC()
		event.Start = &start
	}
	if input.End != nil {
		if event.Start == nil {
			vErr.add("end", "end requires a start")
		} else {
			end := input.End.UTC()
			if end.Before(*event.Start) {
				end = *event.Start
			}
			event.End = &end
		}
	}

	switch status := EventStatus(strings.ToLower(strings.TrimSpace(input.Status))); status {
	case "":
		event.Status = EventStatusActive
	case EventStatusActive, EventStatusCancelled:
		event.Status = status
	default:
		vErr.add("status", "status must be active or cancelled")
	}

	if event.URL != "" {
		parsed, err := url.Parse(event.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			vErr.add("url", "url must be an absolute http(s) URL")
		}
	}

	if event.Recurrence != "" {
		if event.Start == nil {
			vErr.add("recurrence", "recurring events need a start")
		} else if err := recurrence.Validate(event.Recurrence); err != nil {
			vErr.add("recurrence", "recurrence rule is invalid")
		}
	}

	return event, vErr
}
