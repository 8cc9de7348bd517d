package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/example/campus-events/internal/testfixtures"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{name: "scrape only", args: []string{"-scrape"}, want: options{scrape: true}},
		{name: "extract with batch", args: []string{"-extract", "-batch", "5"}, want: options{extract: true, batch: 5}},
		{name: "track list", args: []string{"-track", " @chess_club, ,robotics "}, want: options{track: []string{"chess_club", "robotics"}}},
		{name: "nothing to do", args: nil, wantErr: true},
		{name: "negative batch", args: []string{"-extract", "-batch", "-1"}, wantErr: true},
		{name: "unknown flag", args: []string{"-crawl"}, wantErr: true},
		{name: "reset needs confirmation", args: []string{"-reset-processed"}, wantErr: true},
		{name: "confirmed reset", args: []string{"-reset-processed", "-yes"}, want: options{resetProcessed: true, yes: true}},
		{name: "event reset then extract", args: []string{"-reset-events", "-yes", "-extract"}, want: options{extract: true, resetEvents: true, yes: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseFlags(tc.args, io.Discard)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags returned error: %v", err)
			}
			if got.scrape != tc.want.scrape || got.extract != tc.want.extract || got.batch != tc.want.batch ||
				got.resetProcessed != tc.want.resetProcessed || got.resetEvents != tc.want.resetEvents || got.yes != tc.want.yes {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
			if len(got.track) != len(tc.want.track) {
				t.Fatalf("expected track %v, got %v", tc.want.track, got.track)
			}
			for i := range got.track {
				if got.track[i] != tc.want.track[i] {
					t.Fatalf("expected track %v, got %v", tc.want.track, got.track)
				}
			}
		})
	}
}

func TestTrackProfilesSkipsKnownAccounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	harness.SeedProfiles(t, testfixtures.NewProfile("chess_club"))
	ids := testfixtures.NewIDGenerator("profile")
	clock := testfixtures.NewClock(time.Time{})

	added, err := trackProfiles(ctx, harness.Store.Profiles, []string{"Chess_Club", "robotics", "robotics"}, ids.NextFunc(), clock.NowFunc())
	if err != nil {
		t.Fatalf("trackProfiles returned error: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected one new profile, got %d", added)
	}

	profiles, err := harness.Store.Profiles.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles returned error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 tracked profiles, got %+v", profiles)
	}
}

type resetStub struct {
	calls   []string
	deleted int64
	queued  int64
	err     error
}

func (s *resetStub) DeleteExtractedEvents(ctx context.Context) (int64, error) {
	s.calls = append(s.calls, "events")
	return s.deleted, s.err
}

func (s *resetStub) ResetProcessed(ctx context.Context) (int64, error) {
	s.calls = append(s.calls, "posts")
	return s.queued, nil
}

func TestResetExtraction(t *testing.T) {
	t.Parallel()

	t.Run("posts only", func(t *testing.T) {
		t.Parallel()

		stub := &resetStub{queued: 4}
		deleted, queued, err := resetExtraction(context.Background(), stub, nil)
		if err != nil {
			t.Fatalf("resetExtraction returned error: %v", err)
		}
		if deleted != 0 || queued != 4 || len(stub.calls) != 1 {
			t.Fatalf("unexpected reset %d/%d calls %v", deleted, queued, stub.calls)
		}
	})

	t.Run("events are deleted before posts are queued", func(t *testing.T) {
		t.Parallel()

		stub := &resetStub{deleted: 2, queued: 4}
		deleted, queued, err := resetExtraction(context.Background(), stub, stub)
		if err != nil {
			t.Fatalf("resetExtraction returned error: %v", err)
		}
		if deleted != 2 || queued != 4 {
			t.Fatalf("unexpected counts %d/%d", deleted, queued)
		}
		if len(stub.calls) != 2 || stub.calls[0] != "events" || stub.calls[1] != "posts" {
			t.Fatalf("unexpected call order %v", stub.calls)
		}
	})

	t.Run("failed event delete leaves posts alone", func(t *testing.T) {
		t.Parallel()

		stub := &resetStub{err: errors.New("locked")}
		if _, _, err := resetExtraction(context.Background(), stub, stub); err == nil {
			t.Fatalf("expected an error")
		}
		if len(stub.calls) != 1 {
			t.Fatalf("expected posts to stay processed, got calls %v", stub.calls)
		}
	})
}
