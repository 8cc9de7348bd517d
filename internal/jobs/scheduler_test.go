package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/campus-events/internal/extraction"
	"github.com/example/campus-events/internal/instagram"
)

func TestSchedulerAdd(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{name: "valid", job: Job{Name: "a", Schedule: "*/5 * * * *", Run: noop}},
		{name: "descriptor", job: Job{Name: "b", Schedule: "@hourly", Run: noop}},
		{name: "disabled", job: Job{Name: "c", Run: noop}},
		{name: "bad schedule", job: Job{Name: "d", Schedule: "every now and then", Run: noop}, wantErr: true},
		{name: "missing name", job: Job{Schedule: "@hourly", Run: noop}, wantErr: true},
		{name: "missing run", job: Job{Name: "e", Schedule: "@hourly"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewScheduler(time.UTC, 0, discardLogger())
			err := s.Add(tt.job)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Add error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		s := NewScheduler(time.UTC, 0, discardLogger())
		if err := s.Add(Job{Name: "a", Schedule: "@hourly", Run: noop}); err != nil {
			t.Fatalf("first Add returned error: %v", err)
		}
		if err := s.Add(Job{Name: "a", Schedule: "@daily", Run: noop}); err == nil {
			t.Fatalf("expected duplicate job to be rejected")
		}
	})
}

func TestSchedulerRunNow(t *testing.T) {
	t.Parallel()

	s := NewScheduler(time.UTC, 50*time.Millisecond, discardLogger())
	var sawDeadline bool
	failure := errors.New("boom")
	if err := s.Add(Job{Name: "work", Schedule: "@daily", Run: func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return failure
	}}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if err := s.RunNow("work"); !errors.Is(err, failure) {
		t.Fatalf("expected job error, got %v", err)
	}
	if !sawDeadline {
		t.Fatalf("expected run context to carry the job timeout")
	}
	if err := s.RunNow("missing"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}

func TestSchedulerStopCancelsRuns(t *testing.T) {
	t.Parallel()

	s := NewScheduler(time.UTC, 0, discardLogger())
	started := make(chan struct{})
	if err := s.Add(Job{Name: "long", Schedule: "@daily", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	s.Start(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.RunNow("long") }()
	<-started

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled run, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("running job was not cancelled")
	}
}

func TestJobConstructors(t *testing.T) {
	t.Parallel()

	pipeline := &pipelineStub{}
	extractor := &extractorStub{}
	purger := &purgerStub{}

	jobs := []Job{
		PipelineJob("@hourly", pipeline),
		ExtractionJob("@hourly", 25, extractor),
		PurgeJob("@hourly", purger),
	}
	wantNames := []string{PipelineJobName, ExtractionJobName, PurgeJobName}
	for i, job := range jobs {
		if job.Name != wantNames[i] {
			t.Fatalf("job %d: got name %q want %q", i, job.Name, wantNames[i])
		}
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("job %s returned error: %v", job.Name, err)
		}
	}
	if pipeline.runs != 1 || extractor.lastBatch != 25 || purger.calls != 1 {
		t.Fatalf("jobs did not call through: pipeline=%d batch=%d purge=%d", pipeline.runs, extractor.lastBatch, purger.calls)
	}

	extractor.err = errors.New("queue unavailable")
	if err := ExtractionJob("", 5, extractor).Run(context.Background()); !errors.Is(err, extractor.err) {
		t.Fatalf("expected wrapped extraction error, got %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pipelineStub struct{ runs int }

func (p *pipelineStub) Run(context.Context) (instagram.Summary, error) {
	p.runs++
	return instagram.Summary{}, nil
}

type extractorStub struct {
	lastBatch int
	err       error
}

func (e *extractorStub) RunBatch(_ context.Context, n int) ([]extraction.Result, error) {
	e.lastBatch = n
	return nil, e.err
}

type purgerStub struct{ calls int }

func (p *purgerStub) PurgeExpiredSessions(context.Context) (int64, error) {
	p.calls++
	return 0, nil
}
