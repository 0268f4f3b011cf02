package publisher_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/publisher"
	"github.com/toonrelay/pipeline/internal/resultcache"
	"github.com/toonrelay/pipeline/internal/snowflake"
)

// --- fake CatalogStore --------------------------------------------------

type fakeStore struct {
	mu           sync.Mutex
	series       map[string]model.Series
	chapters     map[string]model.Chapter   // key: seriesID|number
	translations map[string]model.Translation // key: chapterID|src|tgt
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		series:       make(map[string]model.Series),
		chapters:     make(map[string]model.Chapter),
		translations: make(map[string]model.Translation),
	}
}

func chapterKey(seriesID string, number float64) string {
	return seriesID + "|" + strconv.FormatFloat(number, 'f', -1, 64)
}

func translationKey(chapterID, src, tgt string) string { return chapterID + "|" + src + "|" + tgt }

func (f *fakeStore) FindSeriesByNormalizedTitle(_ context.Context, normalized string) (*model.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.series {
		if normalizedTitleOf(s.Title) == normalized {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListNormalizedTitles(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for id, s := range f.series {
		out[normalizedTitleOf(s.Title)] = id
	}
	return out, nil
}

func (f *fakeStore) GetSeries(_ context.Context, id string) (*model.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) FindChapterByNumber(_ context.Context, seriesID string, number float64) (*model.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chapters[chapterKey(seriesID, number)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) FindTranslation(_ context.Context, chapterID, src, tgt string) (*model.Translation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.translations[translationKey(chapterID, src, tgt)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) Commit(_ context.Context, in publisher.CommitInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[in.Series.ID] = in.Series
	f.chapters[chapterKey(in.Chapter.SeriesID, in.Chapter.Number)] = in.Chapter
	f.translations[translationKey(in.Translation.ChapterID, in.Translation.SourceLang, in.Translation.TargetLang)] = in.Translation
	return nil
}

func normalizedTitleOf(title string) string {
	// mirrors publisher.normalizeTitle without exporting it
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+32)
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		default:
			if len(out) > 0 && out[len(out)-1] != ' ' {
				out = append(out, ' ')
			}
		}
	}
	s := string(out)
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// --- helpers -------------------------------------------------------------

func newTestCache(t *testing.T) *resultcache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return resultcache.NewCache(client, 30*24*time.Hour, time.Hour)
}

func chapterResult() *model.ChapterResult {
	return &model.ChapterResult{
		Pages: []model.RenderedPage{
			{Index: 0, ImageRef: "page1.jpg", Width: 100, Height: 200},
		},
	}
}

func newPublisherForTest(t *testing.T, store publisher.CatalogStore) *publisher.Publisher {
	t.Helper()
	require.NoError(t, snowflake.Init(3))
	files, err := blobstore.NewLocalFileManager(t.TempDir())
	require.NoError(t, err)
	scratch, err := blobstore.NewScratchStore(t.TempDir())
	require.NoError(t, err)
	_, _, err = scratch.Put(context.Background(), "scratch-key", []blobstore.PageImage{
		{Index: 0, Bytes: []byte("fake-jpeg-bytes"), Ext: "jpg"},
	}, nil)
	require.NoError(t, err)

	return publisher.New(publisher.Config{
		Store:   store,
		Files:   files,
		Scratch: scratch,
		Cache:   newTestCache(t),
	})
}

// --- tests -----------------------------------------------------------

func TestPublish_CreatesNewSeriesAndChapter(t *testing.T) {
	store := newFakeStore()
	pub := newPublisherForTest(t, store)

	result := chapterResult()
	result.Pages[0].ImageRef = "scratch-key/page_001.jpg"

	out, err := pub.Publish(context.Background(), publisher.Request{
		ChapterURL:      "https://example.com/series/chapter-5",
		SeriesName:      "My Great Series",
		SourceLang:      "ko",
		TargetLang:      "en",
		Backend:         model.BackendLLM,
		Result:          result,
		ReplaceExisting: true,
	})
	require.NoError(t, err)
	require.True(t, out.SeriesCreated)
	require.True(t, out.Committed)
	require.NotEmpty(t, out.StoragePath)

	require.Len(t, store.series, 1)
	require.Len(t, store.chapters, 1)
	require.Len(t, store.translations, 1)
}

func TestPublish_ExactMatchSeriesReused(t *testing.T) {
	store := newFakeStore()
	store.series["existing-1"] = model.Series{ID: "existing-1", Title: "My Great Series", SourceLang: "ko", TargetLang: "en"}
	pub := newPublisherForTest(t, store)

	result := chapterResult()
	result.Pages[0].ImageRef = "scratch-key/page_001.jpg"

	out, err := pub.Publish(context.Background(), publisher.Request{
		ChapterURL:      "https://example.com/series/chapter-5",
		SeriesName:      "My Great Series",
		SourceLang:      "ko",
		TargetLang:      "en",
		Backend:         model.BackendLLM,
		Result:          result,
		ReplaceExisting: true,
	})
	require.NoError(t, err)
	require.False(t, out.SeriesCreated)
	require.Equal(t, "existing-1", out.SeriesID)
}

func TestPublish_FuzzyMatchSeriesReused(t *testing.T) {
	store := newFakeStore()
	store.series["existing-1"] = model.Series{ID: "existing-1", Title: "My Great Series", SourceLang: "ko", TargetLang: "en"}
	pub := newPublisherForTest(t, store)

	result := chapterResult()
	result.Pages[0].ImageRef = "scratch-key/page_001.jpg"

	out, err := pub.Publish(context.Background(), publisher.Request{
		ChapterURL:      "https://example.com/series/chapter-5",
		SeriesName:      "My Great Series HD", // close enough to fuzzy-match, not exact
		SourceLang:      "ko",
		TargetLang:      "en",
		Backend:         model.BackendLLM,
		Result:          result,
		ReplaceExisting: true,
	})
	require.NoError(t, err)
	require.False(t, out.SeriesCreated)
	require.Equal(t, "existing-1", out.SeriesID)
}

func TestPublish_ReplaceExistingOverwritesTranslation(t *testing.T) {
	store := newFakeStore()
	pub := newPublisherForTest(t, store)
	ctx := context.Background()

	result := chapterResult()
	result.Pages[0].ImageRef = "scratch-key/page_001.jpg"

	req := publisher.Request{
		ChapterURL:      "https://example.com/series/chapter-20",
		SeriesName:      "Another Series",
		SourceLang:      "en",
		TargetLang:      "tr",
		Backend:         model.BackendLLM,
		Result:          result,
		ReplaceExisting: true,
	}

	first, err := pub.Publish(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Committed)

	second, err := pub.Publish(ctx, req)
	require.NoError(t, err)
	require.True(t, second.Committed)
	require.Equal(t, first.TranslationID, second.TranslationID)
	require.Equal(t, first.StoragePath, second.StoragePath)

	require.Len(t, store.translations, 1)
}

func TestPublish_KeepsExistingWhenReplaceExistingFalse(t *testing.T) {
	store := newFakeStore()
	pub := newPublisherForTest(t, store)
	ctx := context.Background()

	result := chapterResult()
	result.Pages[0].ImageRef = "scratch-key/page_001.jpg"

	req := publisher.Request{
		ChapterURL:      "https://example.com/series/chapter-20",
		SeriesName:      "Another Series",
		SourceLang:      "en",
		TargetLang:      "tr",
		Backend:         model.BackendLLM,
		Result:          result,
		ReplaceExisting: true,
	}
	first, err := pub.Publish(ctx, req)
	require.NoError(t, err)

	req.ReplaceExisting = false
	second, err := pub.Publish(ctx, req)
	require.NoError(t, err)
	require.False(t, second.Committed)
	require.Equal(t, first.TranslationID, second.TranslationID)
}
