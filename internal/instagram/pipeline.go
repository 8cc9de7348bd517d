package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/campus-events/internal/metrics"
	"github.com/example/campus-events/internal/persistence"
)

// Storage buckets written by the pipeline.
const (
	ProfilesBucket = "instagram_profiles"
	PostsBucket    = "instagram_posts"
)

// ProfileStore loads and updates tracked accounts.
type ProfileStore interface {
	ListProfiles(ctx context.Context) ([]persistence.Profile, error)
	UpsertProfile(ctx context.Context, profile persistence.Profile) error
}

// PostStore records scraped posts.
type PostStore interface {
	CreatePost(ctx context.Context, post persistence.Post) error
	PostExists(ctx context.Context, shortcode string) (bool, error)
}

// ObjectStore uploads captions and images.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	PutFromURL(ctx context.Context, bucket, key, url string) (string, error)
}

// Config tunes pacing and retries.
type Config struct {
	// Lookback bounds how old a post may be to be stored.
	Lookback time.Duration
	// MinDelay and MaxDelay bound the random pause between accounts.
	MinDelay         time.Duration
	MaxDelay         time.Duration
	MaxAttempts      int
	BaseBackoff      time.Duration
	ImageConcurrency int
}

// DefaultConfig mirrors the pacing used against the live site.
func DefaultConfig() Config {
	return Config{
		Lookback:         30 * 24 * time.Hour,
		MinDelay:         5 * time.Second,
		MaxDelay:         15 * time.Second,
		MaxAttempts:      3,
		BaseBackoff:      time.Minute,
		ImageConcurrency: 4,
	}
}

// Summary reports what one run did.
type Summary struct {
	Profiles    int
	Skipped     int
	Failed      int
	PostsStored int
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides uuid-based post ids.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// WithSleep replaces the context-aware sleep used for pacing and backoff.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// Pipeline crawls every tracked account and stores its new posts.
type Pipeline struct {
	scraper  Scraper
	profiles ProfileStore
	posts    PostStore
	objects  ObjectStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPipeline wires a pipeline. Zero config fields other than the delays take
// DefaultConfig values.
func NewPipeline(scraper Scraper, profiles ProfileStore, posts PostStore, objects ObjectStore, cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	defaults := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaults.Lookback
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaults.BaseBackoff
	}
	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = defaults.ImageConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		scraper:  scraper,
		profiles: profiles,
		posts:    posts,
		objects:  objects,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every tracked account once. A failing account is logged and
// counted; only listing accounts or cancellation fails the run.
func (p *Pipeline) Run(ctx context.Context) (summary Summary, err error) {
	if p == nil {
		return Summary{}, fmt.Errorf("instagram pipeline is nil")
	}
	start := time.Now()
	defer func() { metrics.ObservePipelineRun(start, err) }()

	profiles, err := p.profiles.ListProfiles(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list profiles: %w", err)
	}
	p.logger.InfoContext(ctx, "instagram pipeline started", "profiles", len(profiles))

	for i, profile := range profiles {
		if i > 0 {
			if err = p.sleep(ctx, p.profileDelay()); err != nil {
				return summary, err
			}
		}
		summary.Profiles++

		logger := p.logger.With("profile_id", profile.ID, "username", profile.Username)
		stored, skipped, procErr := p.processProfile(ctx, profile, logger)
		summary.PostsStored += stored
		switch {
		case procErr != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
				return summary, err
			}
			summary.Failed++
			logger.ErrorContext(ctx, "profile failed", "error", procErr)
		case skipped:
			summary.Skipped++
		}
	}

	p.logger.InfoContext(ctx, "instagram pipeline finished",
		"profiles", summary.Profiles,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"posts_stored", summary.PostsStored,
	)
	return summary, nil
}

func (p *Pipeline) processProfile(ctx context.Context, profile persistence.Profile, logger *slog.Logger) (int, bool, error) {
	info, err := withRetry(ctx, p, logger, "fetch_profile", func() (ProfileInfo, error) {
		return p.scraper.FetchProfile(ctx, profile.Username)
	})
	if errors.Is(err, ErrProfileNotFound) {
		logger.WarnContext(ctx, "profile not found, skipping")
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("fetch profile: %w", err)
	}
	if info.IsPrivate {
		logger.InfoContext(ctx, "profile is private, skipping")
		return 0, true, nil
	}

	profile = p.applyProfileInfo(ctx, profile, info, logger)
	if err := p.profiles.UpsertProfile(ctx, profile); err != nil {
		return 0, false, fmt.Errorf("update profile: %w", err)
	}

	listed, err := withRetry(ctx, p, logger, "list_posts", func() ([]PostInfo, error) {
		return p.scraper.ListPosts(ctx, profile.Username)
	})
	if err != nil {
		return 0, false, fmt.Errorf("list posts: %w", err)
	}
	fresh := newPosts(listed, profile.LastSeenShortcode, p.now().Add(-p.cfg.Lookback))
	if len(fresh) == 0 {
		logger.InfoContext(ctx, "no new posts", "last_seen_shortcode", profile.LastSeenShortcode)
		return 0, false, nil
	}

	stored := 0
	for _, post := range fresh {
		ok, err := p.storePost(ctx, profile.ID, post, logger)
		if err != nil {
			if ctx.Err() != nil {
				return stored, false, err
			}
			logger.ErrorContext(ctx, "store post failed", "shortcode", post.Shortcode, "error", err)
			continue
		}
		if ok {
			stored++
			metrics.PostsStored.Inc()
		}
	}

	profile.LastSeenShortcode = fresh[0].Shortcode
	last := p.now().UTC()
	profile.LastUpdated = &last
	if err := p.profiles.UpsertProfile(ctx, profile); err != nil {
		return stored, false, fmt.Errorf("advance checkpoint: %w", err)
	}
	logger.InfoContext(ctx, "profile processed", "new_posts", len(fresh), "stored", stored, "last_seen_shortcode", profile.LastSeenShortcode)
	return stored, false, nil
}

// applyProfileInfo copies scraped fields onto the stored account. The picture
// is re-uploaded only when its URL changed; a failed upload keeps the old URL.
func (p *Pipeline) applyProfileInfo(ctx context.Context, profile persistence.Profile, info ProfileInfo, logger *slog.Logger) persistence.Profile {
	if info.ProfilePicURL != "" && info.ProfilePicURL != profile.ProfilePicURL {
		key := strings.ToLower(profile.Username) + "/profile.jpg"
		if _, err := p.objects.PutFromURL(ctx, ProfilesBucket, key, info.ProfilePicURL); err != nil {
			logger.WarnContext(ctx, "profile picture upload failed", "error", err)
		} else {
			profile.ProfilePicURL = info.ProfilePicURL
		}
	}
	profile.FullName = info.FullName
	profile.Bio = info.Bio
	profile.Followers = info.Followers
	profile.IsVerified = info.IsVerified
	profile.IsPrivate = info.IsPrivate
	profile.MediaCount = info.MediaCount
	updated := p.now().UTC()
	profile.LastUpdated = &updated
	return profile
}

// newPosts walks posts newest first and stops at the checkpoint or the first
// post older than since. Posts without still images are dropped.
func newPosts(posts []PostInfo, lastSeen string, since time.Time) []PostInfo {
	var fresh []PostInfo
	for _, post := range posts {
		if lastSeen != "" && post.Shortcode == lastSeen {
			break
		}
		if post.PostedAt.Before(since) {
			break
		}
		if post.Shortcode == "" || len(post.ImageURLs) == 0 {
			continue
		}
		fresh = append(fresh, post)
	}
	return fresh
}

// storePost uploads the caption and images then records the post. It reports
// false when the post already exists or no image could be stored.
func (p *Pipeline) storePost(ctx context.Context, profileID string, post PostInfo, logger *slog.Logger) (bool, error) {
	exists, err := p.posts.PostExists(ctx, post.Shortcode)
	if err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	if exists {
		logger.DebugContext(ctx, "post already stored", "shortcode", post.Shortcode)
		return false, nil
	}

	captionPath, err := p.objects.Put(ctx, PostsBucket, post.Shortcode+"/caption.txt", []byte(post.Caption), "text/plain; charset=utf-8")
	if err != nil {
		logger.WarnContext(ctx, "caption upload failed", "shortcode", post.Shortcode, "error", err)
		captionPath = ""
	}

	imagePaths := p.uploadImages(ctx, post, logger)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(imagePaths) == 0 {
		logger.WarnContext(ctx, "no images stored, skipping post", "shortcode", post.Shortcode)
		return false, nil
	}

	err = p.posts.CreatePost(ctx, persistence.Post{
		ID:          p.newID(),
		Shortcode:   post.Shortcode,
		ProfileID:   profileID,
		CaptionPath: captionPath,
		PostedAt:    post.PostedAt.UTC(),
		ImagePaths:  imagePaths,
		CreatedAt:   p.now().UTC(),
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create post: %w", err)
	}
	return true, nil
}

// uploadImages stores images concurrently, keeping their original order and
// dropping the ones that failed.
func (p *Pipeline) uploadImages(ctx context.Context, post PostInfo, logger *slog.Logger) []string {
	paths := make([]string, len(post.ImageURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ImageConcurrency)
	for i, imageURL := range post.ImageURLs {
		g.Go(func() error {
			key := fmt.Sprintf("%s/image_%d.jpg", post.Shortcode, i+1)
			stored, err := p.objects.PutFromURL(gctx, PostsBucket, key, imageURL)
			if err != nil {
				logger.WarnContext(gctx, "image upload failed", "shortcode", post.Shortcode, "index", i+1, "error", err)
				return nil
			}
			paths[i] = stored
			return nil
		})
	}
	_ = g.Wait()

	kept := paths[:0]
	for _, path := range paths {
		if path != "" {
			kept = append(kept, path)
		}
	}
	return kept
}

func (p *Pipeline) profileDelay() time.Duration {
	spread := p.cfg.MaxDelay - p.cfg.MinDelay
	if spread <= 0 {
		return p.cfg.MinDelay
	}
	return p.cfg.MinDelay + time.Duration(rand.Int64N(int64(spread)+1))
}

// withRetry retries fn while it reports ErrRateLimited, doubling the wait
// each attempt and adding up to half of it as jitter.
func withRetry[T any](ctx context.Context, p *Pipeline, logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	var zero T
	backoff := p.cfg.BaseBackoff
	for attempt := 1; ; attempt++ {
		value, err := fn()
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt >= p.cfg.MaxAttempts {
			return zero, err
		}
		wait := backoff + time.Duration(rand.Int64N(int64(backoff/2)+1))
		logger.WarnContext(ctx, "rate limited, backing off", "op", op, "attempt", attempt, "wait", wait)
		if err := p.sleep(ctx, wait); err != nil {
			return zero, err
		}
		backoff *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
