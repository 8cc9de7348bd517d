package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/campus-events/internal/application"
)

type rsvpService interface {
	SetRSVP(ctx context.Context, params application.SetRSVPParams) (application.SetRSVPResult, error)
	CancelRSVP(ctx context.Context, principal application.Principal, eventID string) error
	ListForUser(ctx context.Context, principal application.Principal) ([]application.UserRSVP, error)
}

type RSVPHandler struct {
	service   rsvpService
	responder responder
	logger    *slog.Logger
}

func NewRSVPHandler(service rsvpService, logger *slog.Logger) *RSVPHandler {
	base := defaultLogger(logger)
	return &RSVPHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RSVPHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RSVPHandler", operation, attrs...)
}

// Set stores the caller's RSVP. Overlapping plans come back as warnings and
// do not block the RSVP.
func (h *RSVPHandler) Set(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req rsvpRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.log(r.Context(), "Set", "principal_id", principal.UserID, "event_id", eventID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode rsvp", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}

	logger := h.log(r.Context(), "Set", "principal_id", principal.UserID, "event_id", eventID)
	result, err := h.service.SetRSVP(r.Context(), application.SetRSVPParams{
		Principal: principal,
		EventID:   eventID,
		Status:    req.Status,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "rsvp failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	warnings := make([]conflictDTO, 0, len(result.Warnings))
	for _, warning := range result.Warnings {
		warnings = append(warnings, conflictDTO{EventID: warning.EventID, EventName: warning.EventName, Type: warning.Type})
	}
	logger.With("warnings", len(warnings)).InfoContext(r.Context(), "rsvp stored")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, setRSVPResponse{RSVP: toRSVPDTO(result.RSVP), Warnings: warnings})
}

func (h *RSVPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	logger := h.log(r.Context(), "Cancel", "principal_id", principal.UserID, "event_id", eventID)
	if err := h.service.CancelRSVP(r.Context(), principal, eventID); err != nil {
		logger.ErrorContext(r.Context(), "rsvp cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Mine lists the caller's RSVPs together with their events.
func (h *RSVPHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Mine", "principal_id", principal.UserID)
	items, err := h.service.ListForUser(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "rsvp list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]userRSVPDTO, 0, len(items))
	for _, item := range items {
		out = append(out, userRSVPDTO{RSVP: toRSVPDTO(item.RSVP), Event: toEventDTO(item.Event)})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRSVPsResponse{RSVPs: out})
}

type rsvpRequest struct {
	Status string `json:"status"`
}

type rsvpDTO struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type conflictDTO struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Type      string `json:"type"`
}

type setRSVPResponse struct {
	RSVP     rsvpDTO       `json:"rsvp"`
	Warnings []conflictDTO `json:"warnings"`
}

type userRSVPDTO struct {
	RSVP  rsvpDTO  `json:"rsvp"`
	Event eventDTO `json:"event"`
}

type listRSVPsResponse struct {
	RSVPs []userRSVPDTO `json:"rsvps"`
}

func toRSVPDTO(rsvp application.RSVP) rsvpDTO {
	return rsvpDTO{
		EventID:   rsvp.EventID,
		UserID:    rsvp.UserID,
		Status:    string(rsvp.Status),
		CreatedAt: rsvp.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
