package jobstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toonrelay/pipeline/internal/db"
	"github.com/toonrelay/pipeline/internal/jobstore"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/snowflake"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) jobstore.Store {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return jobstore.NewSQLiteStore(database)
}

func testFingerprint() model.Fingerprint {
	return model.Fingerprint{
		ChapterURL: "https://example.com/series/chapter-1",
		TargetLang: "en",
		Backend:    model.BackendLLM,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, testFingerprint(), "Example Series")
	require.NoError(t, err)
	require.Equal(t, model.JobPending, job.Status)
	require.Equal(t, 0, job.Progress)

	fetched, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
	require.Equal(t, "Example Series", fetched.SeriesName)
	require.Equal(t, testFingerprint(), fetched.Fingerprint)
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := store.Create(ctx, testFingerprint(), "")
	require.NoError(t, err)

	require.NoError(t, store.Start(ctx, job.ID, now))
	fetched, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobProcessing, fetched.Status)

	require.NoError(t, store.UpdateProgress(ctx, job.ID, 150, now))
	fetched, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, 100, fetched.Progress, "progress should clamp to 100")

	require.NoError(t, store.Complete(ctx, job.ID, "blob://result", now))
	fetched, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, fetched.Status)
	require.Equal(t, "blob://result", fetched.ResultRef)
}

func TestFail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, testFingerprint(), "")
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, job.ID, "upstream timed out", time.Now()))
	fetched, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobFailed, fetched.Status)
	require.Equal(t, "upstream timed out", fetched.Error)
}

func TestFindByFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.FindByFingerprint(ctx, testFingerprint())
	require.NoError(t, err)

	created, err := store.Create(ctx, testFingerprint(), "")
	require.NoError(t, err)

	found, err := store.FindByFingerprint(ctx, testFingerprint())
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.ID, found.ID)
}

func TestMain(m *testing.M) {
	_ = os.Setenv("TZ", "UTC")
	_ = snowflake.Init(1)
	os.Exit(m.Run())
}
