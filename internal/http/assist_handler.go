package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/campus-events/internal/application"
)

type contentService interface {
	DescribeEvent(ctx context.Context, params application.DescribeEventParams) (application.EventDraft, error)
	GenerateImage(ctx context.Context, params application.GenerateImageParams) (application.GeneratedImage, error)
}

// AssistHandler serves the add-event assistant.
type AssistHandler struct {
	service   contentService
	responder responder
	logger    *slog.Logger
}

func NewAssistHandler(service contentService, logger *slog.Logger) *AssistHandler {
	base := defaultLogger(logger)
	return &AssistHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AssistHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AssistHandler", operation, attrs...)
}

func (h *AssistHandler) Describe(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req describeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Describe", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode description request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	draft, err := h.service.DescribeEvent(r.Context(), application.DescribeEventParams{
		Principal:    principal,
		Name:         req.Name,
		Notes:        req.Notes,
		Start:        req.Start,
		LocationName: req.LocationName,
	})
	if err != nil {
		h.log(r.Context(), "Describe", "principal_id", principal.UserID).ErrorContext(r.Context(), "description draft failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, draftResponse{Name: draft.Name, Description: draft.Description})
}

func (h *AssistHandler) Image(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Image", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode image request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	image, err := h.service.GenerateImage(r.Context(), application.GenerateImageParams{
		Principal:   principal,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.log(r.Context(), "Image", "principal_id", principal.UserID).ErrorContext(r.Context(), "image generation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, imageResponse{ImagePath: image.Path, ImageURL: fileURL(image.Path)})
}

type describeRequest struct {
	Name         string     `json:"name"`
	Notes        string     `json:"notes"`
	Start        *time.Time `json:"start"`
	LocationName string     `json:"location_name"`
}

type draftResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type imageRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type imageResponse struct {
	ImagePath string `json:"image_path"`
	ImageURL  string `json:"image_url"`
}
