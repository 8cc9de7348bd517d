package jobs

import (
	"context"
	"fmt"

	"github.com/example/campus-events/internal/extraction"
	"github.com/example/campus-events/internal/instagram"
)

// Job names used for scheduling and metrics.
const (
	PipelineJobName   = "instagram_pipeline"
	ExtractionJobName = "event_extraction"
	PurgeJobName      = "session_purge"
)

// PipelineRunner crawls tracked accounts.
type PipelineRunner interface {
	Run(ctx context.Context) (instagram.Summary, error)
}

// BatchExtractor turns stored posts into events.
type BatchExtractor interface {
	RunBatch(ctx context.Context, n int) ([]extraction.Result, error)
}

// SessionPurger removes expired sessions.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// PipelineJob runs one crawl of every tracked account.
func PipelineJob(schedule string, runner PipelineRunner) Job {
	return Job{
		Name:     PipelineJobName,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := runner.Run(ctx)
			return err
		},
	}
}

// ExtractionJob processes one batch of unprocessed posts. Individual post
// failures are reported by the extractor and do not fail the job.
func ExtractionJob(schedule string, batch int, extractor BatchExtractor) Job {
	return Job{
		Name:     ExtractionJobName,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if _, err := extractor.RunBatch(ctx, batch); err != nil {
				return fmt.Errorf("extraction batch: %w", err)
			}
			return nil
		},
	}
}

// PurgeJob deletes expired sessions.
func PurgeJob(schedule string, purger SessionPurger) Job {
	return Job{
		Name:     PurgeJobName,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := purger.PurgeExpiredSessions(ctx)
			return err
		},
	}
}
