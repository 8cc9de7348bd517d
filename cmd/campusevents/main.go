package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/blobstore"
	"github.com/example/campus-events/internal/config"
	"github.com/example/campus-events/internal/extraction"
	httptransport "github.com/example/campus-events/internal/http"
	"github.com/example/campus-events/internal/instagram"
	"github.com/example/campus-events/internal/jobs"
	"github.com/example/campus-events/internal/llm"
	"github.com/example/campus-events/internal/logging"
	"github.com/example/campus-events/internal/metrics"
	"github.com/example/campus-events/internal/persistence/sqlite"
	"github.com/example/campus-events/internal/persistence/sqlite/migration"
	"github.com/example/campus-events/internal/repository"
)

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	if app.jobs != nil {
		app.jobs.Start(ctx)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := app.jobs.Stop(stopCtx); err != nil {
				logger.Error("failed to stop background jobs", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("campus events API listening", "addr", server.Addr, "timezone", cfg.Timezone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired server. jobs is nil when background jobs are disabled.
type app struct {
	handler http.Handler
	jobs    *jobs.Scheduler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	built := &app{}
	defer func() {
		if err != nil {
			built.close()
		}
	}()

	storage, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	built.closers = append(built.closers, func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	})

	objects, err := blobstore.New(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("open object storage: %w", err)
	}

	loc := cfg.Location()
	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	users := repository.NewUsers(storage.Users)
	events := repository.NewEvents(storage.Events)
	cache := application.NewEventCache(cfg.Calendar.CacheSize, cfg.Calendar.CacheTTL)

	authService := application.NewAuthServiceWithLogger(users, repository.NewSessions(storage.Sessions), application.VerifyPassword, tokenGenerator, now, cfg.SessionTTL, logger)
	userService := application.NewUserServiceWithLogger(users, application.HashPassword, idGenerator, now, logger)
	eventService := application.NewEventServiceWithLogger(events, cache, idGenerator, now, logger)
	rsvpService := application.NewRSVPServiceWithLogger(repository.NewRSVPs(storage.RSVPs), events, loc, now, logger)
	calendarService := application.NewCalendarServiceWithLogger(events, cache, loc, cfg.Calendar.MaxOccurrences, now, logger)
	classmateService := application.NewClassmateServiceWithLogger(repository.NewClassSchedules(storage.Classes), logger)

	chat := newChatClient(cfg, logger)
	images := llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.ImageBaseURL,
		APIKey:            cfg.LLM.ImageAPIKey,
		Model:             cfg.LLM.ImageModel,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		MaxAttempts:       cfg.LLM.MaxRetries + 1,
		Timeout:           2 * time.Minute,
		ImageSize:         "1024x1024",
	}, llm.WithLogger(logger), llm.WithRetryObserver(metrics.IncLLMRetry))
	contentService := application.NewContentServiceWithLogger(chat, images, objects, idGenerator, logger)

	systemHandler, err := httptransport.NewSystemHandler(storage, objects, []string{
		application.EventImagesBucket,
		instagram.ProfilesBucket,
		instagram.PostsBucket,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build file handler: %w", err)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:     httptransport.NewAuthHandler(authService, logger),
		Users:    httptransport.NewUserHandler(userService, logger),
		Events:   httptransport.NewEventHandler(eventService, logger),
		RSVPs:    httptransport.NewRSVPHandler(rsvpService, logger),
		Calendar: httptransport.NewCalendarHandler(calendarService, eventService, logger),
		Classes:  httptransport.NewClassHandler(classmateService, logger),
		Assist:   httptransport.NewAssistHandler(contentService, logger),
		System:   systemHandler,
		Metrics:  metrics.Handler(),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recover(logger),
			httptransport.Metrics(),
		},
	})

	protected := httptransport.RequireSession(authService, logger)(router)
	built.handler = httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httptransport.PublicRequest(r) {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))

	if !cfg.Jobs.Enabled {
		return built, nil
	}

	scheduler := jobs.NewScheduler(loc, 30*time.Minute, logger)
	if err := scheduler.Add(jobs.PurgeJob(cfg.Jobs.PurgeSchedule, authService)); err != nil {
		return nil, err
	}
	if ierr := cfg.RequireIngestion(); ierr != nil {
		logger.Warn("ingestion jobs disabled", "reason", ierr)
		built.jobs = scheduler
		return built, nil
	}

	scraper := instagram.NewBrowserScraper(ctx, instagram.BrowserConfig{
		ExecPath:    cfg.Instagram.ChromePath,
		Headful:     !cfg.Instagram.Headless,
		CookiesFile: cfg.Instagram.CookiesFile,
	}, logger)
	built.closers = append(built.closers, scraper.Close)

	pipeline := instagram.NewPipeline(scraper, storage.Profiles, storage.Posts, objects, pipelineConfig(cfg), logger, instagram.WithIDGenerator(idGenerator))
	extractor := extraction.New(chat, storage.Posts, storage.Profiles, objects, eventService, now, logger)
	extractor.SetSampling(cfg.LLM.Temperature, cfg.LLM.MaxTokens)

	if err := scheduler.Add(jobs.PipelineJob(cfg.Jobs.PipelineSchedule, pipeline)); err != nil {
		return nil, err
	}
	if err := scheduler.Add(jobs.ExtractionJob(cfg.Jobs.ExtractionSchedule, cfg.Jobs.ExtractionBatch, extractor)); err != nil {
		return nil, err
	}
	built.jobs = scheduler
	return built, nil
}

func newChatClient(cfg config.Config, logger *slog.Logger) *llm.Client {
	return llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.ChatBaseURL,
		APIKey:            cfg.LLM.ChatAPIKey,
		Model:             cfg.LLM.ChatModel,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		RequestsPerDay:    cfg.LLM.RequestsPerDay,
		TokensPerMinute:   cfg.LLM.TokensPerMinute,
		MaxAttempts:       cfg.LLM.MaxRetries + 1,
		Timeout:           time.Minute,
	}, llm.WithLogger(logger), llm.WithRetryObserver(metrics.IncLLMRetry))
}

func pipelineConfig(cfg config.Config) instagram.Config {
	pc := instagram.DefaultConfig()
	pc.Lookback = time.Duration(cfg.Instagram.LookbackDays) * 24 * time.Hour
	pc.MinDelay = cfg.Instagram.MinDelay
	pc.MaxDelay = cfg.Instagram.MaxDelay
	pc.MaxAttempts = cfg.Instagram.MaxRetries + 1
	return pc
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
