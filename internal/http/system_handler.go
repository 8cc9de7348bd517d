package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FileSystemProvider exposes a storage bucket for read-only serving.
type FileSystemProvider interface {
	FileSystem(bucket string) (http.FileSystem, error)
}

type SystemHandler struct {
	db        Pinger
	files     map[string]http.Handler
	responder responder
	logger    *slog.Logger
}

// NewSystemHandler serves health checks and stored files. Only the listed
// buckets are exposed under /files/.
func NewSystemHandler(db Pinger, store FileSystemProvider, buckets []string, logger *slog.Logger) (*SystemHandler, error) {
	base := defaultLogger(logger)
	h := &SystemHandler{db: db, files: make(map[string]http.Handler, len(buckets)), responder: newResponder(base), logger: base}
	if store == nil {
		return h, nil
	}
	for _, bucket := range buckets {
		fs, err := store.FileSystem(bucket)
		if err != nil {
			return nil, err
		}
		h.files[bucket] = http.StripPrefix("/files/"+bucket, http.FileServer(fs))
	}
	return h, nil
}

// Health pings the database with a short deadline.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			handlerLogger(r.Context(), h.logger, "SystemHandler", "Health").ErrorContext(r.Context(), "database ping failed", "error", err)
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

// Files serves /files/{bucket}/{key}. Directory listings are refused.
func (h *SystemHandler) Files(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/files/")
	bucket, key, _ := strings.Cut(rest, "/")
	handler, ok := h.files[bucket]
	if !ok || key == "" || strings.HasSuffix(key, "/") {
		http.NotFound(w, r)
		return
	}
	handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string `json:"status"`
}
