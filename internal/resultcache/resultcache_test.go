package resultcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/resultcache"
)

func newTestCache(t *testing.T) *resultcache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return resultcache.NewCache(client, 30*24*time.Hour, time.Hour)
}

func testFingerprint() model.Fingerprint {
	return model.Fingerprint{ChapterURL: "https://example.com/s/c1", TargetLang: "en", Backend: model.BackendLLM}
}

func TestCache_MissThenSetThenGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	fp := testFingerprint()

	got, err := cache.Get(ctx, fp)
	require.NoError(t, err)
	require.Nil(t, got)

	result := &model.ChapterResult{Fingerprint: fp, SeriesName: "Example"}
	require.NoError(t, cache.Set(ctx, fp, result))

	got, err = cache.Get(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Example", got.SeriesName)
}

func TestCache_Delete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	fp := testFingerprint()

	require.NoError(t, cache.Set(ctx, fp, &model.ChapterResult{Fingerprint: fp}))
	require.NoError(t, cache.Delete(ctx, fp))

	got, err := cache.Get(ctx, fp)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCache_InvalidateSeries(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	fpA := model.Fingerprint{ChapterURL: "https://example.com/series-a/c1", TargetLang: "en", Backend: model.BackendLLM}
	fpB := model.Fingerprint{ChapterURL: "https://example.com/series-b/c1", TargetLang: "en", Backend: model.BackendLLM}

	require.NoError(t, cache.Set(ctx, fpA, &model.ChapterResult{Fingerprint: fpA}))
	require.NoError(t, cache.Set(ctx, fpB, &model.ChapterResult{Fingerprint: fpB}))

	deleted, err := cache.InvalidateSeries(ctx, "https://example.com/series-a/")
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	got, err := cache.Get(ctx, fpA)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = cache.Get(ctx, fpB)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestLock_TryLockThenRelease(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	fp := testFingerprint()

	lock, err := cache.TryLock(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, lock)

	blocked, err := cache.TryLock(ctx, fp)
	require.NoError(t, err)
	require.Nil(t, blocked, "second locker must be told the fingerprint is already in progress")

	require.NoError(t, lock.Release(ctx))

	reacquired, err := cache.TryLock(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, reacquired)
}
