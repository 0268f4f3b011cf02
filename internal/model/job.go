package model

import "time"

// JobStatus is the external, client-visible state of a translation job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// JobRecord is the externally visible record of one chapter translation
// request: status, progress, and (on failure) an error message. It is
// intentionally thin — it carries no internal pipeline state, only what a
// client polling for status needs.
type JobRecord struct {
	ID          string
	Fingerprint Fingerprint
	SeriesName  string
	Status      JobStatus
	Progress    int // 0..100
	Error       string
	ResultRef   string // blobstore/catalog reference once COMPLETED
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Start transitions a pending job to PROCESSING.
func (j *JobRecord) Start(at time.Time) {
	j.Status = JobProcessing
	j.Progress = 0
	j.UpdatedAt = at
}

// UpdateProgress records progress on a processing job, clamped to [0,100].
func (j *JobRecord) UpdateProgress(progress int, at time.Time) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.UpdatedAt = at
}

// Complete marks the job done with a pointer to its result.
func (j *JobRecord) Complete(resultRef string, at time.Time) {
	j.Status = JobCompleted
	j.Progress = 100
	j.ResultRef = resultRef
	j.UpdatedAt = at
}

// Fail marks the job failed with the given error message.
func (j *JobRecord) Fail(err string, at time.Time) {
	j.Status = JobFailed
	j.Error = err
	j.UpdatedAt = at
}
