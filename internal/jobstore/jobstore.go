// Package jobstore persists the external, client-visible status of
// translation jobs: pending/processing/completed/failed, progress, and
// error message. It is deliberately thin — the pipeline's internal
// orchestration state never leaks into a JobRecord.
package jobstore

import (
	"context"
	"time"

	"github.com/toonrelay/pipeline/internal/model"
)

// Store creates, updates, and looks up JobRecords.
type Store interface {
	// Create inserts a new PENDING job and returns its ID.
	Create(ctx context.Context, fp model.Fingerprint, seriesName string) (*model.JobRecord, error)
	// Get returns the job with the given ID, or pipelineerr KindNotFound.
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	// FindByFingerprint returns the most recent job for a fingerprint, if
	// any, so callers can report an in-flight job instead of starting a
	// duplicate.
	FindByFingerprint(ctx context.Context, fp model.Fingerprint) (*model.JobRecord, error)
	// Start transitions a job to PROCESSING.
	Start(ctx context.Context, id string, at time.Time) error
	// UpdateProgress records progress on a processing job.
	UpdateProgress(ctx context.Context, id string, progress int, at time.Time) error
	// Complete marks a job done with a result reference.
	Complete(ctx context.Context, id string, resultRef string, at time.Time) error
	// Fail marks a job failed with an error message.
	Fail(ctx context.Context, id string, errMsg string, at time.Time) error
}
