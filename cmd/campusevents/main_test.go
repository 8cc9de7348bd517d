package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/campus-events/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.SQLiteDSN = filepath.Join(dir, "campus.db")
	cfg.Storage.Root = filepath.Join(dir, "buckets")
	cfg.Timezone = "UTC"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *app {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	built, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	t.Cleanup(built.close)
	return built
}

func serve(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestNewAppServesPublicAndProtectedRoutes(t *testing.T) {
	built := newTestApp(t, testConfig(t))
	if built.jobs != nil {
		t.Fatalf("expected jobs to stay disabled by default")
	}

	if rec := serve(t, built.handler, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, built.handler, http.MethodGet, "/events", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected public event list, got %d", rec.Code)
	}
	if rec := serve(t, built.handler, http.MethodGet, "/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected /me to require a session, got %d", rec.Code)
	}

	rec := serve(t, built.handler, http.MethodPost, "/users", "", map[string]any{
		"email":        "grace@school.test",
		"display_name": "Grace",
		"password":     "hopper-1906",
		"grade":        12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected registration 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, built.handler, http.MethodPost, "/sessions", "", map[string]string{
		"email":    "grace@school.test",
		"password": "hopper-1906",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected sign-in 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil || session.Token == "" {
		t.Fatalf("expected a session token, got %s (%v)", rec.Body.String(), err)
	}

	if rec := serve(t, built.handler, http.MethodGet, "/me", session.Token, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected /me 200 with a session, got %d", rec.Code)
	}

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Hour)
	rec = serve(t, built.handler, http.MethodPost, "/events", session.Token, map[string]any{
		"name":       "Science fair",
		"start":      start.Format(time.RFC3339),
		"end":        start.Add(2 * time.Hour).Format(time.RFC3339),
		"categories": []string{"event"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected event creation 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, built.handler, http.MethodGet, "/calendar.ics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected feed 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Science fair") {
		t.Fatalf("expected feed to include the new event")
	}
}

func TestNewAppSchedulesOnlyPurgeWithoutIngestionSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.Enabled = true
	cfg.LLM.ChatAPIKey = ""

	built := newTestApp(t, cfg)
	if built.jobs == nil {
		t.Fatalf("expected a scheduler when jobs are enabled")
	}
	if err := built.jobs.RunNow("session_purge"); err != nil {
		t.Fatalf("expected purge job to be registered: %v", err)
	}
	if err := built.jobs.RunNow("instagram_pipeline"); err == nil {
		t.Fatalf("expected pipeline job to be absent without ingestion settings")
	}
}

func TestNewAppRejectsUnusableStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLiteDSN = ""

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := newApp(context.Background(), cfg, logger); err == nil {
		t.Fatalf("expected an error for an empty DSN")
	}
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Instagram.LookbackDays = 7
	cfg.Instagram.MaxRetries = 2

	pc := pipelineConfig(cfg)
	if pc.Lookback != 7*24*time.Hour {
		t.Fatalf("unexpected lookback %s", pc.Lookback)
	}
	if pc.MaxAttempts != 3 {
		t.Fatalf("expected retries plus the first attempt, got %d", pc.MaxAttempts)
	}
	if pc.MinDelay != cfg.Instagram.MinDelay || pc.MaxDelay != cfg.Instagram.MaxDelay {
		t.Fatalf("expected delays to follow configuration, got %+v", pc)
	}
}

func TestRandomHex(t *testing.T) {
	first := randomHex(16)
	if len(first) != 32 {
		t.Fatalf("expected 32 hex characters, got %q", first)
	}
	if first == randomHex(16) {
		t.Fatalf("expected distinct values")
	}
}
