// Command igpipeline runs one Instagram crawl and/or one extraction batch and
// exits. It shares configuration and storage with the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/blobstore"
	"github.com/example/campus-events/internal/config"
	"github.com/example/campus-events/internal/extraction"
	"github.com/example/campus-events/internal/instagram"
	"github.com/example/campus-events/internal/llm"
	"github.com/example/campus-events/internal/logging"
	"github.com/example/campus-events/internal/metrics"
	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/persistence/sqlite"
	"github.com/example/campus-events/internal/persistence/sqlite/migration"
	"github.com/example/campus-events/internal/repository"
)

type options struct {
	scrape         bool
	extract        bool
	batch          int
	track          []string
	resetProcessed bool
	resetEvents    bool
	yes            bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("igpipeline", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	var track string
	fs.BoolVar(&opts.scrape, "scrape", false, "crawl tracked accounts and store new posts")
	fs.BoolVar(&opts.extract, "extract", false, "turn unprocessed posts into events")
	fs.IntVar(&opts.batch, "batch", 0, "posts per extraction batch (default from configuration)")
	fs.StringVar(&track, "track", "", "comma separated usernames to start tracking")
	fs.BoolVar(&opts.resetProcessed, "reset-processed", false, "queue every stored post for extraction again")
	fs.BoolVar(&opts.resetEvents, "reset-events", false, "delete events extracted from posts and queue every post again")
	fs.BoolVar(&opts.yes, "yes", false, "confirm a reset")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.batch < 0 {
		return options{}, fmt.Errorf("-batch must not be negative")
	}
	if (opts.resetProcessed || opts.resetEvents) && !opts.yes {
		return options{}, fmt.Errorf("resets rewrite stored data: pass -yes to confirm")
	}
	for _, name := range strings.Split(track, ",") {
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		if name != "" {
			opts.track = append(opts.track, name)
		}
	}
	if !opts.scrape && !opts.extract && len(opts.track) == 0 && !opts.resetProcessed && !opts.resetEvents {
		return options{}, fmt.Errorf("nothing to do: pass -scrape, -extract, -track or a reset")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	if opts.scrape || opts.extract {
		if err := cfg.RequireIngestion(); err != nil {
			return err
		}
	}

	storage, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if opts.resetProcessed || opts.resetEvents {
		var events eventPurger
		if opts.resetEvents {
			events = storage.Events
		}
		deleted, queued, err := resetExtraction(ctx, storage.Posts, events)
		if err != nil {
			return err
		}
		logger.Info("extraction reset", "events_deleted", deleted, "posts_queued", queued)
	}

	if len(opts.track) > 0 {
		added, err := trackProfiles(ctx, storage.Profiles, opts.track, uuid.NewString, time.Now)
		if err != nil {
			return err
		}
		logger.Info("profiles tracked", "added", added, "requested", len(opts.track))
	}
	if !opts.scrape && !opts.extract {
		return nil
	}

	objects, err := blobstore.New(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("open object storage: %w", err)
	}

	if opts.scrape {
		scraper := instagram.NewBrowserScraper(ctx, instagram.BrowserConfig{
			ExecPath:    cfg.Instagram.ChromePath,
			Headful:     !cfg.Instagram.Headless,
			CookiesFile: cfg.Instagram.CookiesFile,
		}, logger)
		defer scraper.Close()

		pc := instagram.DefaultConfig()
		pc.Lookback = time.Duration(cfg.Instagram.LookbackDays) * 24 * time.Hour
		pc.MinDelay = cfg.Instagram.MinDelay
		pc.MaxDelay = cfg.Instagram.MaxDelay
		pc.MaxAttempts = cfg.Instagram.MaxRetries + 1

		summary, err := instagram.NewPipeline(scraper, storage.Profiles, storage.Posts, objects, pc, logger, instagram.WithIDGenerator(uuid.NewString)).Run(ctx)
		if err != nil {
			return fmt.Errorf("crawl: %w", err)
		}
		logger.Info("crawl finished", "profiles", summary.Profiles, "skipped", summary.Skipped, "failed", summary.Failed, "posts", summary.PostsStored)
	}

	if opts.extract {
		chat := llm.NewClient(llm.Config{
			BaseURL:           cfg.LLM.ChatBaseURL,
			APIKey:            cfg.LLM.ChatAPIKey,
			Model:             cfg.LLM.ChatModel,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			RequestsPerDay:    cfg.LLM.RequestsPerDay,
			TokensPerMinute:   cfg.LLM.TokensPerMinute,
			MaxAttempts:       cfg.LLM.MaxRetries + 1,
			Timeout:           time.Minute,
		}, llm.WithLogger(logger), llm.WithRetryObserver(metrics.IncLLMRetry))

		events := application.NewEventServiceWithLogger(repository.NewEvents(storage.Events), nil, uuid.NewString, time.Now, logger)
		extractor := extraction.New(chat, storage.Posts, storage.Profiles, objects, events, time.Now, logger)
		extractor.SetSampling(cfg.LLM.Temperature, cfg.LLM.MaxTokens)

		batch := opts.batch
		if batch == 0 {
			batch = cfg.Jobs.ExtractionBatch
		}
		results, err := extractor.RunBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		counts := make(map[extraction.Outcome]int)
		for _, result := range results {
			counts[result.Outcome]++
		}
		logger.Info("extraction finished",
			"posts", len(results),
			"created", counts[extraction.OutcomeCreated],
			"no_event", counts[extraction.OutcomeNoEvent],
			"past", counts[extraction.OutcomePast],
			"failed", counts[extraction.OutcomeFailed],
		)
		usage := chat.Usage()
		logger.Info("model usage",
			"requests_last_minute", usage.RequestsLastMinute,
			"requests_last_day", usage.RequestsLastDay,
			"requests_per_day_cap", usage.RequestsPerDay,
			"tokens_last_minute", usage.TokensLastMinute,
			"tokens_per_minute_cap", usage.TokensPerMinute,
		)
	}
	return nil
}

type postResetter interface {
	ResetProcessed(ctx context.Context) (int64, error)
}

type eventPurger interface {
	DeleteExtractedEvents(ctx context.Context) (int64, error)
}

// resetExtraction queues every post for extraction again. With events set it
// first deletes the events earlier runs extracted, so the rerun does not
// duplicate them.
func resetExtraction(ctx context.Context, posts postResetter, events eventPurger) (deleted, queued int64, err error) {
	if events != nil {
		if deleted, err = events.DeleteExtractedEvents(ctx); err != nil {
			return 0, 0, fmt.Errorf("delete extracted events: %w", err)
		}
	}
	if queued, err = posts.ResetProcessed(ctx); err != nil {
		return deleted, 0, fmt.Errorf("reset processed posts: %w", err)
	}
	return deleted, queued, nil
}

type profileStore interface {
	ListProfiles(ctx context.Context) ([]persistence.Profile, error)
	UpsertProfile(ctx context.Context, profile persistence.Profile) error
}

// trackProfiles adds usernames that are not tracked yet and reports how many
// were new.
func trackProfiles(ctx context.Context, store profileStore, usernames []string, newID func() string, now func() time.Time) (int, error) {
	existing, err := store.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, profile := range existing {
		known[strings.ToLower(profile.Username)] = true
	}

	added := 0
	for _, username := range usernames {
		key := strings.ToLower(username)
		if known[key] {
			continue
		}
		if err := store.UpsertProfile(ctx, persistence.Profile{ID: newID(), Username: username, CreatedAt: now().UTC()}); err != nil {
			return added, fmt.Errorf("track %s: %w", username, err)
		}
		known[key] = true
		added++
	}
	return added, nil
}
