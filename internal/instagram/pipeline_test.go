package instagram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	scraper := &scraperStub{
		profiles: map[string]ProfileInfo{
			"robotics": {Username: "robotics", FullName: "Robotics Club", Bio: "We build robots", Followers: 120, MediaCount: 40, ProfilePicURL: "https://cdn.example/new.jpg"},
			"secret":   {Username: "secret", IsPrivate: true},
		},
		posts: map[string][]PostInfo{
			"robotics": {
				{Shortcode: "NEW3", PostedAt: now.Add(-1 * day), Caption: "Meeting Friday!", ImageURLs: []string{"https://cdn.example/a.jpg", "https://cdn.example/fail.jpg", "https://cdn.example/c.jpg"}},
				{Shortcode: "REEL", PostedAt: now.Add(-2 * day)},
				{Shortcode: "DUP", PostedAt: now.Add(-3 * day), ImageURLs: []string{"https://cdn.example/d.jpg"}},
				{Shortcode: "BROKEN", PostedAt: now.Add(-4 * day), ImageURLs: []string{"https://cdn.example/fail2.jpg"}},
				{Shortcode: "OLD1", PostedAt: now.Add(-5 * day), ImageURLs: []string{"https://cdn.example/e.jpg"}},
				{Shortcode: "OLDER", PostedAt: now.Add(-6 * day), ImageURLs: []string{"https://cdn.example/f.jpg"}},
			},
		},
		fetchErrs: map[string][]error{
			"ghost":  {ErrProfileNotFound},
			"broken": {errors.New("browser crashed")},
		},
	}
	profiles := &profileStoreStub{profiles: []persistence.Profile{
		{ID: "p1", Username: "robotics", LastSeenShortcode: "OLD1", ProfilePicURL: "https://cdn.example/old.jpg"},
		{ID: "p2", Username: "secret"},
		{ID: "p3", Username: "ghost"},
		{ID: "p4", Username: "broken"},
	}}
	posts := &postStoreStub{existing: map[string]bool{"DUP": true}}
	objects := &objectStoreStub{}

	pipeline, sleeps := newTestPipeline(scraper, profiles, posts, objects, now, Config{})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := Summary{Profiles: 4, Skipped: 2, Failed: 1, PostsStored: 1}
	if summary != want {
		t.Fatalf("unexpected summary: got %+v want %+v", summary, want)
	}
	if len(*sleeps) != 3 {
		t.Fatalf("expected a pause between each of the 4 profiles, got %d", len(*sleeps))
	}

	if len(posts.created) != 1 {
		t.Fatalf("expected one stored post, got %d", len(posts.created))
	}
	stored := posts.created[0]
	if stored.Shortcode != "NEW3" || stored.ProfileID != "p1" || stored.ID != "post-1" {
		t.Fatalf("unexpected post: %+v", stored)
	}
	if stored.CaptionPath != "instagram_posts/NEW3/caption.txt" {
		t.Fatalf("unexpected caption path: %q", stored.CaptionPath)
	}
	wantImages := []string{"instagram_posts/NEW3/image_1.jpg", "instagram_posts/NEW3/image_3.jpg"}
	if strings.Join(stored.ImagePaths, ",") != strings.Join(wantImages, ",") {
		t.Fatalf("unexpected image paths: %v", stored.ImagePaths)
	}
	if got := string(objects.object("instagram_posts/NEW3/caption.txt")); got != "Meeting Friday!" {
		t.Fatalf("unexpected caption body: %q", got)
	}
	if objects.object("instagram_profiles/robotics/profile.jpg") == nil {
		t.Fatalf("expected changed profile picture to be uploaded")
	}

	final := profiles.upserted["p1"]
	if final.LastSeenShortcode != "NEW3" {
		t.Fatalf("expected checkpoint NEW3, got %q", final.LastSeenShortcode)
	}
	if final.ProfilePicURL != "https://cdn.example/new.jpg" || final.Bio != "We build robots" || final.Followers != 120 {
		t.Fatalf("profile fields not refreshed: %+v", final)
	}
	if final.LastUpdated == nil || !final.LastUpdated.Equal(now) {
		t.Fatalf("unexpected last updated: %v", final.LastUpdated)
	}
	for _, id := range []string{"p2", "p3", "p4"} {
		if _, ok := profiles.upserted[id]; ok {
			t.Fatalf("profile %s should not have been updated", id)
		}
	}
}

func TestPipelineKeepsPictureURLWhenUploadFails(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	scraper := &scraperStub{profiles: map[string]ProfileInfo{
		"band": {Username: "band", ProfilePicURL: "https://cdn.example/fail-pic.jpg"},
	}}
	profiles := &profileStoreStub{profiles: []persistence.Profile{{ID: "p1", Username: "band", ProfilePicURL: "https://cdn.example/old.jpg", LastSeenShortcode: "X"}}}
	objects := &objectStoreStub{}

	pipeline, _ := newTestPipeline(scraper, profiles, &postStoreStub{}, objects, now, Config{})
	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	final := profiles.upserted["p1"]
	if final.ProfilePicURL != "https://cdn.example/old.jpg" {
		t.Fatalf("expected old picture URL to be kept, got %q", final.ProfilePicURL)
	}
	if final.LastSeenShortcode != "X" {
		t.Fatalf("checkpoint should not move without new posts, got %q", final.LastSeenShortcode)
	}
}

func TestPipelineRetriesRateLimits(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	t.Run("recovers", func(t *testing.T) {
		t.Parallel()
		scraper := &scraperStub{
			profiles:  map[string]ProfileInfo{"chess": {Username: "chess"}},
			fetchErrs: map[string][]error{"chess": {ErrRateLimited, ErrRateLimited}},
		}
		profiles := &profileStoreStub{profiles: []persistence.Profile{{ID: "p1", Username: "chess"}}}
		pipeline, sleeps := newTestPipeline(scraper, profiles, &postStoreStub{}, &objectStoreStub{}, now, Config{BaseBackoff: time.Second, MaxAttempts: 3})

		summary, err := pipeline.Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if summary.Failed != 0 {
			t.Fatalf("expected profile to recover, got %+v", summary)
		}
		if len(*sleeps) != 2 {
			t.Fatalf("expected two backoff waits, got %v", *sleeps)
		}
		first, second := (*sleeps)[0], (*sleeps)[1]
		if first < time.Second || first > 1500*time.Millisecond {
			t.Fatalf("first backoff out of range: %v", first)
		}
		if second < 2*time.Second || second > 3*time.Second {
			t.Fatalf("second backoff out of range: %v", second)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		t.Parallel()
		scraper := &scraperStub{
			profiles:  map[string]ProfileInfo{"chess": {Username: "chess"}},
			fetchErrs: map[string][]error{"chess": {ErrRateLimited, ErrRateLimited, ErrRateLimited}},
		}
		profiles := &profileStoreStub{profiles: []persistence.Profile{{ID: "p1", Username: "chess"}}}
		pipeline, _ := newTestPipeline(scraper, profiles, &postStoreStub{}, &objectStoreStub{}, now, Config{BaseBackoff: time.Second, MaxAttempts: 3})

		summary, err := pipeline.Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if summary.Failed != 1 {
			t.Fatalf("expected profile failure, got %+v", summary)
		}
		if scraper.fetchCalls != 3 {
			t.Fatalf("expected 3 attempts, got %d", scraper.fetchCalls)
		}
	})
}

func TestPipelineRunErrors(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	t.Run("list profiles", func(t *testing.T) {
		t.Parallel()
		profiles := &profileStoreStub{listErr: errors.New("db down")}
		pipeline, _ := newTestPipeline(&scraperStub{}, profiles, &postStoreStub{}, &objectStoreStub{}, now, Config{})
		if _, err := pipeline.Run(context.Background()); err == nil {
			t.Fatalf("expected error when profiles cannot be listed")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		profiles := &profileStoreStub{profiles: []persistence.Profile{{ID: "p1", Username: "a"}, {ID: "p2", Username: "b"}}}
		pipeline := NewPipeline(&scraperStub{}, profiles, &postStoreStub{}, &objectStoreStub{}, Config{MinDelay: time.Hour, MaxDelay: 2 * time.Hour}, discardLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := pipeline.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("nil pipeline", func(t *testing.T) {
		t.Parallel()
		var pipeline *Pipeline
		if _, err := pipeline.Run(context.Background()); err == nil {
			t.Fatalf("expected error for nil pipeline")
		}
	})
}

func TestNewPosts(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	since := now.Add(-30 * 24 * time.Hour)
	img := []string{"https://cdn.example/x.jpg"}

	posts := []PostInfo{
		{Shortcode: "A", PostedAt: now.Add(-time.Hour), ImageURLs: img},
		{Shortcode: "B", PostedAt: now.Add(-10 * 24 * time.Hour), ImageURLs: img},
		{Shortcode: "C", PostedAt: now.Add(-31 * 24 * time.Hour), ImageURLs: img},
		{Shortcode: "D", PostedAt: now.Add(-2 * time.Hour), ImageURLs: img},
	}

	tests := []struct {
		name     string
		lastSeen string
		want     string
	}{
		{name: "lookback", want: "A,B"},
		{name: "checkpoint", lastSeen: "B", want: "A"},
		{name: "checkpoint first", lastSeen: "A", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, post := range newPosts(posts, tt.lastSeen, since) {
				got = append(got, post.Shortcode)
			}
			if strings.Join(got, ",") != tt.want {
				t.Fatalf("got %v want %s", got, tt.want)
			}
		})
	}
}

func newTestPipeline(scraper Scraper, profiles ProfileStore, posts PostStore, objects ObjectStore, now time.Time, cfg Config) (*Pipeline, *[]time.Duration) {
	var mu sync.Mutex
	sleeps := []time.Duration{}
	ids := 0
	pipeline := NewPipeline(scraper, profiles, posts, objects, cfg, discardLogger(),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string {
			ids++
			return "post-" + strconv.Itoa(ids)
		}),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			sleeps = append(sleeps, d)
			return ctx.Err()
		}),
	)
	return pipeline, &sleeps
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scraperStub struct {
	profiles   map[string]ProfileInfo
	posts      map[string][]PostInfo
	fetchErrs  map[string][]error
	fetchCalls int
}

func (s *scraperStub) FetchProfile(_ context.Context, username string) (ProfileInfo, error) {
	s.fetchCalls++
	if errs := s.fetchErrs[username]; len(errs) > 0 {
		s.fetchErrs[username] = errs[1:]
		return ProfileInfo{}, errs[0]
	}
	info, ok := s.profiles[username]
	if !ok {
		return ProfileInfo{}, ErrProfileNotFound
	}
	return info, nil
}

func (s *scraperStub) ListPosts(_ context.Context, username string) ([]PostInfo, error) {
	return s.posts[username], nil
}

type profileStoreStub struct {
	profiles []persistence.Profile
	listErr  error
	upserted map[string]persistence.Profile
}

func (s *profileStoreStub) ListProfiles(context.Context) ([]persistence.Profile, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.profiles, nil
}

func (s *profileStoreStub) UpsertProfile(_ context.Context, profile persistence.Profile) error {
	if s.upserted == nil {
		s.upserted = make(map[string]persistence.Profile)
	}
	s.upserted[profile.ID] = profile
	return nil
}

type postStoreStub struct {
	existing map[string]bool
	created  []persistence.Post
}

func (s *postStoreStub) CreatePost(_ context.Context, post persistence.Post) error {
	s.created = append(s.created, post)
	return nil
}

func (s *postStoreStub) PostExists(_ context.Context, shortcode string) (bool, error) {
	return s.existing[shortcode], nil
}

type objectStoreStub struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *objectStoreStub) Put(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	path := bucket + "/" + key
	s.objects[path] = append([]byte(nil), data...)
	return path, nil
}

func (s *objectStoreStub) PutFromURL(ctx context.Context, bucket, key, url string) (string, error) {
	if strings.Contains(url, "fail") {
		return "", errors.New("download failed")
	}
	return s.Put(ctx, bucket, key, []byte("image:"+url), "image/jpeg")
}

func (s *objectStoreStub) object(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[path]
}
