package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/snowflake"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a Store backed by the pipeline's sqlite database.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Create(ctx context.Context, fp model.Fingerprint, seriesName string) (*model.JobRecord, error) {
	now := time.Now().UTC()
	job := &model.JobRecord{
		ID:          strconv.FormatInt(snowflake.NextID(), 10),
		Fingerprint: fp,
		SeriesName:  seriesName,
		Status:      model.JobPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, chapter_url, target_lang, backend, series_name, status, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, job.ID, fp.ChapterURL, fp.TargetLang, int(fp.Backend), seriesName, job.Status, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "jobstore.Create", err)
	}
	return job, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chapter_url, target_lang, backend, series_name, status, progress, error, result_ref, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (s *sqliteStore) FindByFingerprint(ctx context.Context, fp model.Fingerprint) (*model.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chapter_url, target_lang, backend, series_name, status, progress, error, result_ref, created_at, updated_at
		FROM jobs WHERE chapter_url = ? AND target_lang = ? AND backend = ?
		ORDER BY created_at DESC LIMIT 1
	`, fp.ChapterURL, fp.TargetLang, int(fp.Backend))
	job, err := scanJob(row)
	if err != nil {
		var pe *pipelineerr.Error
		if errors.As(err, &pe) && pe.Kind == pipelineerr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *sqliteStore) Start(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 0, updated_at = ? WHERE id = ?
	`, model.JobProcessing, at.Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "jobstore.Start", id)
}

func (s *sqliteStore) UpdateProgress(ctx context.Context, id string, progress int, at time.Time) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, at.Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "jobstore.UpdateProgress", id)
}

func (s *sqliteStore) Complete(ctx context.Context, id string, resultRef string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 100, result_ref = ?, updated_at = ? WHERE id = ?
	`, model.JobCompleted, resultRef, at.Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "jobstore.Complete", id)
}

func (s *sqliteStore) Fail(ctx context.Context, id string, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, model.JobFailed, errMsg, at.Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "jobstore.Fail", id)
}

func checkUpdated(res sql.Result, err error, op, id string) error {
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, op, err)
	}
	if n == 0 {
		return pipelineerr.Wrap(pipelineerr.KindNotFound, op, fmt.Sprintf("job %s not found", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.JobRecord, error) {
	var job model.JobRecord
	var backend int
	var seriesName, errMsg, resultRef sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&job.ID, &job.Fingerprint.ChapterURL, &job.Fingerprint.TargetLang, &backend,
		&seriesName, &job.Status, &job.Progress, &errMsg, &resultRef, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pipelineerr.Wrap(pipelineerr.KindNotFound, "jobstore.Get", "job not found")
		}
		return nil, pipelineerr.New(pipelineerr.KindStorage, "jobstore.Get", err)
	}

	job.Fingerprint.Backend = model.Backend(backend)
	job.SeriesName = seriesName.String
	job.Error = errMsg.String
	job.ResultRef = resultRef.String
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &job, nil
}
