package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-events/internal/calendar"
	"github.com/example/campus-events/internal/recurrence"
)

// EventLister runs filtered event queries.
type EventLister interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// CalendarService renders month and week grids of events.
type CalendarService struct {
	events         EventLister
	cache          *EventCache
	location       *time.Location
	maxOccurrences int
	now            func() time.Time
	logger         *slog.Logger
}

// NewCalendarService wires dependencies for calendar views. loc is the zone
// used when a request does not name one; nil means time.Local.
func NewCalendarService(events EventLister, cache *EventCache, loc *time.Location, maxOccurrences int, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(events, cache, loc, maxOccurrences, now, nil)
}

// NewCalendarServiceWithLogger wires dependencies for calendar views with a specific logger.
func NewCalendarServiceWithLogger(events EventLister, cache *EventCache, loc *time.Location, maxOccurrences int, now func() time.Time, logger *slog.Logger) *CalendarService {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		events:         events,
		cache:          cache,
		location:       loc,
		maxOccurrences: maxOccurrences,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

// View builds the grid selected by params.
func (s *CalendarService) View(ctx context.Context, params CalendarViewParams) (view CalendarView, err error) {
	if s == nil {
		return CalendarView{}, fmt.Errorf("CalendarService is nil")
	}
	if s.events == nil {
		return CalendarView{}, fmt.Errorf("event repository not configured")
	}

	loc := params.Location
	if loc == nil {
		loc = s.location
	}
	now := s.now().In(loc)
	reference := params.Reference
	if reference.IsZero() {
		reference = now
	}

	navigator := calendar.NewNavigator(reference.In(loc), calendar.ParseMode(params.Mode))
	vErr := &ValidationError{}
	switch strings.ToLower(strings.TrimSpace(params.Navigate)) {
	case "":
	case "prev":
		navigator.Navigate(calendar.Prev)
	case "next":
		navigator.Navigate(calendar.Next)
	case "today":
		navigator.GoToToday(now)
	default:
		vErr.add("navigate", "navigate must be prev, next or today")
	}
	if selected := strings.TrimSpace(params.Selected); selected != "" {
		key, parseErr := calendar.ParseDateKey(selected)
		if parseErr != nil {
			vErr.add("selected", "selected must be a YYYY-MM-DD date")
		} else {
			navigator.Select(key)
		}
	}
	if vErr.HasErrors() {
		return CalendarView{}, vErr
	}

	start, end := calendar.WindowRange(navigator.Reference(), navigator.Mode())
	logger := serviceLogger(ctx, s.logger, "CalendarService", "View", "mode", navigator.Mode(), "start", start, "end", end)

	events, err := s.loadRange(ctx, start, end, params.Category, params.Tag)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load events", "error", err)
		return CalendarView{}, err
	}

	dated, undated, truncated := s.expand(ctx, logger, events, start, end, loc)
	buckets := calendar.Bucket(dated, loc)

	view = CalendarView{
		Mode:      navigator.Mode(),
		Reference: navigator.Reference(),
		Start:     start,
		End:       end,
		Today:     now,
		Prev:      calendar.Step(navigator.Reference(), navigator.Mode(), calendar.Prev),
		Next:      calendar.Step(navigator.Reference(), navigator.Mode(), calendar.Next),
		Cells:     navigator.Window(now, buckets),
		Undated:   undated,
		Truncated: truncated,
	}
	if key, ok := navigator.Selected(); ok {
		view.Selected = &key
	}
	logger.DebugContext(ctx, "calendar rendered", "events", len(dated), "undated", len(undated))
	return view, nil
}

func (s *CalendarService) loadRange(ctx context.Context, start, end time.Time, category, tag string) ([]Event, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if tag != "" {
		tag = NormalizeTag(tag)
	}
	key := buildRangeCacheKey(start, end, category, tag)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	from, to := start.UTC(), end.UTC()
	events, err := s.events.ListEvents(ctx, EventFilter{
		From:           &from,
		To:             &to,
		Category:       category,
		Tag:            tag,
		IncludeUndated: true,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, events)
	return events, nil
}

// expand turns stored events into calendar events, replacing each recurring
// event with its occurrences inside [start, end).
func (s *CalendarService) expand(ctx context.Context, logger *slog.Logger, events []Event, start, end time.Time, loc *time.Location) ([]calendar.Event, []calendar.Event, bool) {
	engine := recurrence.NewEngine(loc, s.maxOccurrences)
	window := recurrence.Window{From: start, To: end}

	var dated []calendar.Event
	var undated []calendar.Event
	truncated := false
	for _, event := range events {
		base := toCalendarEvent(event)
		if event.Start == nil {
			undated = append(undated, base)
			continue
		}
		if event.Recurrence == "" {
			dated = append(dated, base)
			continue
		}

		occurrences, capped, err := engine.Expand(recurrence.Series{
			EventID: event.ID,
			Rule:    event.Recurrence,
			Start:   *event.Start,
			End:     event.End,
			AllDay:  event.AllDay,
		}, window)
		if err != nil {
			logger.WarnContext(ctx, "skipping recurrence expansion", "event_id", event.ID, "error", err)
			if !event.Start.Before(start) && event.Start.Before(end) {
				dated = append(dated, base)
			}
			continue
		}
		truncated = truncated || capped
		for _, occurrence := range occurrences {
			instance := base
			occurrenceStart := occurrence.Start
			instance.Start = &occurrenceStart
			instance.End = occurrence.End
			dated = append(dated, instance)
		}
	}
	return dated, undated, truncated
}

func toCalendarEvent(event Event) calendar.Event {
	out := calendar.Event{
		ID:           event.ID,
		Name:         event.Name,
		Start:        event.Start,
		End:          event.End,
		AllDay:       event.AllDay,
		LocationName: event.LocationName,
		Address:      event.Address,
		Description:  event.Description,
		Categories:   event.Categories,
		Tags:         event.Tags,
		OrganizerID:  event.OrganizerID,
	}
	if event.ImagePath != "" {
		out.Images = []string{event.ImagePath}
	}
	return out
}
