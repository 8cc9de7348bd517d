package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/campus-events/internal/application"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	GetEvent(ctx context.Context, eventID string) (application.Event, error)
	ListEvents(ctx context.Context, filter application.EventFilter) ([]application.Event, error)
	Trending(ctx context.Context, days, limit int) ([]application.TrendingEvent, error)
}

type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

// List returns events filtered by the query string. Times accept RFC 3339 or
// a plain YYYY-MM-DD date.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		h.log(r.Context(), "List", "error_kind", "bad_request").ErrorContext(r.Context(), "invalid event filter", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "List")
	events, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		logger.ErrorContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(events)).InfoContext(r.Context(), "events listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

// Trending returns upcoming events ranked by RSVP count.
func (h *EventHandler) Trending(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	days, err := optionalInt(query, "days")
	if err == nil {
		var limit int
		limit, err = optionalInt(query, "limit")
		if err == nil {
			h.trending(w, r, days, limit)
			return
		}
	}
	h.log(r.Context(), "Trending", "error_kind", "bad_request").ErrorContext(r.Context(), "invalid trending query", "error", err)
	h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
}

func (h *EventHandler) trending(w http.ResponseWriter, r *http.Request, days, limit int) {
	logger := h.log(r.Context(), "Trending", "days", days, "limit", limit)
	ranked, err := h.service.Trending(r.Context(), days, limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "trending lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]trendingDTO, 0, len(ranked))
	for _, item := range ranked {
		out = append(out, trendingDTO{Event: toEventDTO(item.Event), RSVPCount: item.RSVPCount})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, trendingResponse{Events: out})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.log(r.Context(), "Get", "event_id", eventID).ErrorContext(r.Context(), "event lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)
	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing event id for update")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "event_id", eventID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "event_id", eventID)
	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal: principal,
		EventID:   eventID,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing event id for delete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "event_id", eventID)
	if err := h.service.DeleteEvent(r.Context(), principal, eventID); err != nil {
		logger.ErrorContext(r.Context(), "event delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func parseEventFilter(query url.Values) (application.EventFilter, error) {
	filter := application.EventFilter{
		Category:       strings.TrimSpace(query.Get("category")),
		Tag:            strings.TrimSpace(query.Get("tag")),
		Query:          strings.TrimSpace(query.Get("q")),
		OrganizerID:    strings.TrimSpace(query.Get("organizer")),
		IncludeUndated: query.Get("include_undated") == "true",
	}

	var err error
	if filter.From, err = optionalTime(query, "from"); err != nil {
		return application.EventFilter{}, err
	}
	if filter.To, err = optionalTime(query, "to"); err != nil {
		return application.EventFilter{}, err
	}
	if filter.Limit, err = optionalInt(query, "limit"); err != nil {
		return application.EventFilter{}, err
	}
	if filter.Limit < 0 {
		return application.EventFilter{}, errors.New("limit must not be negative")
	}
	return filter, nil
}

func optionalTime(query url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 time or a YYYY-MM-DD date", key)
	}
	return &t, nil
}

func optionalInt(query url.Values, key string) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

type eventRequest struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
	AllDay       bool       `json:"all_day"`
	LocationName string     `json:"location_name"`
	Address      string     `json:"address"`
	URL          string     `json:"url"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	OrganizerID  string     `json:"organizer_id"`
	ImagePath    string     `json:"image_path"`
	Recurrence   string     `json:"recurrence"`
	Categories   []string   `json:"categories"`
	Tags         []string   `json:"tags"`
}

func (r eventRequest) toInput() application.EventInput {
	return application.EventInput{
		Name:         r.Name,
		Description:  r.Description,
		Start:        r.Start,
		End:          r.End,
		AllDay:       r.AllDay,
		LocationName: r.LocationName,
		Address:      r.Address,
		URL:          r.URL,
		Type:         r.Type,
		Status:       r.Status,
		OrganizerID:  r.OrganizerID,
		ImagePath:    r.ImagePath,
		Recurrence:   r.Recurrence,
		Categories:   r.Categories,
		Tags:         r.Tags,
	}
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type trendingResponse struct {
	Events []trendingDTO `json:"events"`
}

type trendingDTO struct {
	Event     eventDTO `json:"event"`
	RSVPCount int      `json:"rsvp_count"`
}

type eventDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Start        *string  `json:"start"`
	End          *string  `json:"end"`
	AllDay       bool     `json:"all_day"`
	LocationName string   `json:"location_name,omitempty"`
	Address      string   `json:"address,omitempty"`
	URL          string   `json:"url,omitempty"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	OrganizerID  string   `json:"organizer_id,omitempty"`
	CreatedBy    string   `json:"created_by,omitempty"`
	PostID       string   `json:"post_id,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Recurrence   string   `json:"recurrence,omitempty"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func toEventDTO(event application.Event) eventDTO {
	dto := eventDTO{
		ID:           event.ID,
		Name:         event.Name,
		Description:  event.Description,
		Start:        formatOptionalTime(event.Start),
		End:          formatOptionalTime(event.End),
		AllDay:       event.AllDay,
		LocationName: event.LocationName,
		Address:      event.Address,
		URL:          event.URL,
		Type:         string(event.Type),
		Status:       string(event.Status),
		OrganizerID:  event.OrganizerID,
		CreatedBy:    event.CreatedBy,
		PostID:       event.PostID,
		ImageURL:     fileURL(event.ImagePath),
		Recurrence:   event.Recurrence,
		Categories:   nonNil(event.Categories),
		Tags:         nonNil(event.Tags),
		CreatedAt:    event.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    event.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	return dto
}

func toEventDTOs(events []application.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// fileURL maps a stored "bucket/key" path onto the file server route.
func fileURL(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return ""
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	default:
		return "/files/" + strings.TrimPrefix(path, "/")
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
