package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-events/internal/application"
)

type classmateService interface {
	ReplaceSchedule(ctx context.Context, principal application.Principal, entries []application.ClassEntry) ([]application.ClassEntry, error)
	Schedule(ctx context.Context, principal application.Principal) ([]application.ClassEntry, error)
	Classmates(ctx context.Context, principal application.Principal) ([]application.Classmate, error)
}

type ClassHandler struct {
	service   classmateService
	responder responder
	logger    *slog.Logger
}

func NewClassHandler(service classmateService, logger *slog.Logger) *ClassHandler {
	base := defaultLogger(logger)
	return &ClassHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ClassHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ClassHandler", operation, attrs...)
}

func (h *ClassHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	entries, err := h.service.Schedule(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "GetSchedule", "principal_id", principal.UserID).ErrorContext(r.Context(), "schedule lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleResponse{Entries: toClassEntryDTOs(entries)})
}

// PutSchedule replaces the caller's whole class schedule.
func (h *ClassHandler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "PutSchedule", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode schedule", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	entries := make([]application.ClassEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entries = append(entries, application.ClassEntry{
			Period:  entry.Period,
			Course:  entry.Course,
			Teacher: entry.Teacher,
			Room:    entry.Room,
		})
	}

	logger := h.log(r.Context(), "PutSchedule", "principal_id", principal.UserID, "entries", len(entries))
	stored, err := h.service.ReplaceSchedule(r.Context(), principal, entries)
	if err != nil {
		logger.ErrorContext(r.Context(), "schedule update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "schedule replaced")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleResponse{Entries: toClassEntryDTOs(stored)})
}

func (h *ClassHandler) Classmates(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	classmates, err := h.service.Classmates(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Classmates", "principal_id", principal.UserID).ErrorContext(r.Context(), "classmate lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]classmateDTO, 0, len(classmates))
	for _, c := range classmates {
		out = append(out, classmateDTO{
			UserID:      c.UserID,
			DisplayName: c.DisplayName,
			Grade:       c.Grade,
			Period:      c.Period,
			Course:      c.Course,
			Teacher:     c.Teacher,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, classmatesResponse{Classmates: out})
}

type classEntryDTO struct {
	Period  int    `json:"period"`
	Course  string `json:"course"`
	Teacher string `json:"teacher"`
	Room    string `json:"room,omitempty"`
}

type scheduleRequest struct {
	Entries []classEntryDTO `json:"entries"`
}

type scheduleResponse struct {
	Entries []classEntryDTO `json:"entries"`
}

type classmateDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Grade       int    `json:"grade,omitempty"`
	Period      int    `json:"period"`
	Course      string `json:"course"`
	Teacher     string `json:"teacher"`
}

type classmatesResponse struct {
	Classmates []classmateDTO `json:"classmates"`
}

func toClassEntryDTOs(entries []application.ClassEntry) []classEntryDTO {
	out := make([]classEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, classEntryDTO{Period: entry.Period, Course: entry.Course, Teacher: entry.Teacher, Room: entry.Room})
	}
	return out
}
