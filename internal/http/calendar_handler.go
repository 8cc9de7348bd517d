package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/calendar"
	"github.com/example/campus-events/internal/ics"
)

type calendarService interface {
	View(ctx context.Context, params application.CalendarViewParams) (application.CalendarView, error)
}

type eventLister interface {
	ListEvents(ctx context.Context, filter application.EventFilter) ([]application.Event, error)
}

type CalendarHandler struct {
	service   calendarService
	events    eventLister
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

// NewCalendarHandler serves grid views from service and the iCalendar feed
// from events.
func NewCalendarHandler(service calendarService, events eventLister, logger *slog.Logger) *CalendarHandler {
	base := defaultLogger(logger)
	return &CalendarHandler{service: service, events: events, responder: newResponder(base), logger: base, now: time.Now}
}

func (h *CalendarHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CalendarHandler", operation, attrs...)
}

// View renders a month or week grid. Query parameters: ref (YYYY-MM-DD), mode,
// nav (prev, next, today), selected, tz, category and tag.
func (h *CalendarHandler) View(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	params := application.CalendarViewParams{
		Mode:     query.Get("mode"),
		Navigate: query.Get("nav"),
		Selected: query.Get("selected"),
		Category: query.Get("category"),
		Tag:      query.Get("tag"),
	}

	if tz := strings.TrimSpace(query.Get("tz")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("tz must be an IANA time zone name"))
			return
		}
		params.Location = loc
	}
	if ref := strings.TrimSpace(query.Get("ref")); ref != "" {
		key, err := calendar.ParseDateKey(ref)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("ref must be a YYYY-MM-DD date"))
			return
		}
		loc := params.Location
		if loc == nil {
			loc = time.UTC
		}
		// Noon keeps the day stable when the service converts to its zone.
		params.Reference = key.Midnight(loc).Add(12 * time.Hour)
	}

	logger := h.log(r.Context(), "View", "mode", params.Mode, "nav", params.Navigate)
	view, err := h.service.View(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar view failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCalendarDTO(view))
}

// Feed writes the iCalendar feed of dated events, optionally filtered by
// category or tag.
func (h *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	logger := h.log(r.Context(), "Feed")
	events, err := h.events.ListEvents(r.Context(), application.EventFilter{
		Category: strings.TrimSpace(query.Get("category")),
		Tag:      strings.TrimSpace(query.Get("tag")),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "feed query failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var buf bytes.Buffer
	if err := ics.Write(&buf, events, ics.Options{Stamp: h.now()}); err != nil {
		logger.ErrorContext(r.Context(), "feed serialization failed", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="campus-events.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.WarnContext(r.Context(), "feed write failed", "error", err)
	}
}

type calendarDTO struct {
	Mode      string             `json:"mode"`
	Reference string             `json:"reference"`
	Start     string             `json:"start"`
	End       string             `json:"end"`
	Today     string             `json:"today"`
	Prev      string             `json:"prev"`
	Next      string             `json:"next"`
	Selected  *string            `json:"selected"`
	Cells     []calendarCellDTO  `json:"cells"`
	Undated   []calendarEventDTO `json:"undated"`
	Truncated bool               `json:"truncated,omitempty"`
}

type calendarCellDTO struct {
	Date     string             `json:"date"`
	InPeriod bool               `json:"in_period"`
	IsToday  bool               `json:"is_today"`
	Events   []calendarEventDTO `json:"events"`
}

type calendarEventDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Start        *string  `json:"start"`
	End          *string  `json:"end"`
	AllDay       bool     `json:"all_day"`
	LocationName string   `json:"location_name,omitempty"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	ImageURLs    []string `json:"image_urls,omitempty"`
}

func toCalendarDTO(view application.CalendarView) calendarDTO {
	dto := calendarDTO{
		Mode:      string(view.Mode),
		Reference: calendar.KeyOf(view.Reference).String(),
		Start:     view.Start.Format(time.RFC3339),
		End:       view.End.Format(time.RFC3339),
		Today:     calendar.KeyOf(view.Today).String(),
		Prev:      calendar.KeyOf(view.Prev).String(),
		Next:      calendar.KeyOf(view.Next).String(),
		Cells:     make([]calendarCellDTO, 0, len(view.Cells)),
		Undated:   toCalendarEventDTOs(view.Undated),
		Truncated: view.Truncated,
	}
	if view.Selected != nil {
		selected := view.Selected.String()
		dto.Selected = &selected
	}
	for _, cell := range view.Cells {
		dto.Cells = append(dto.Cells, calendarCellDTO{
			Date:     cell.Key.String(),
			InPeriod: cell.InPeriod,
			IsToday:  cell.IsToday,
			Events:   toCalendarEventDTOs(cell.Events),
		})
	}
	return dto
}

func toCalendarEventDTOs(events []calendar.Event) []calendarEventDTO {
	out := make([]calendarEventDTO, 0, len(events))
	for _, event := range events {
		item := calendarEventDTO{
			ID:           event.ID,
			Name:         event.Name,
			Start:        formatOptionalTime(event.Start),
			End:          formatOptionalTime(event.End),
			AllDay:       event.AllDay,
			LocationName: event.LocationName,
			Categories:   nonNil(event.Categories),
			Tags:         nonNil(event.Tags),
		}
		for _, image := range event.Images {
			item.ImageURLs = append(item.ImageURLs, fileURL(image))
		}
		out = append(out, item)
	}
	return out
}
