package batch_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/batch"
	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/imageproc"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/ocr"
	"github.com/toonrelay/pipeline/internal/pipeline"
	"github.com/toonrelay/pipeline/internal/resultcache"
	"github.com/toonrelay/pipeline/internal/scraper"
	"github.com/toonrelay/pipeline/internal/translator"
)

func TestParseRange(t *testing.T) {
	got, err := batch.ParseRange("1-3,5,2-4")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestParseRange_RejectsInvertedRange(t *testing.T) {
	_, err := batch.ParseRange("10-2")
	require.Error(t, err)
}

func TestBuildURL_RecognizesTemplates(t *testing.T) {
	require.Equal(t, "https://site.com/series/chapter-7", batch.BuildURL("https://site.com/series/chapter-3", 7))
	require.Equal(t, "https://site.com/ep-7", batch.BuildURL("https://site.com/ep-3", 7))
	require.Equal(t, "https://site.com/read?chapter_no=7", batch.BuildURL("https://site.com/read?chapter_no=3", 7))
	require.Equal(t, "https://site.com/7/page", batch.BuildURL("https://site.com/3/page", 7))
}

func TestBuildURL_FallsBackWhenNoTemplateMatches(t *testing.T) {
	require.Equal(t, "https://site.com/series/chapter-7", batch.BuildURL("https://site.com/series", 7))
}

func TestChapterNumberFromURL_DefaultsToOne(t *testing.T) {
	require.Equal(t, 1, batch.ChapterNumberFromURL("https://site.com/series/latest"))
	require.Equal(t, 12, batch.ChapterNumberFromURL("https://site.com/series/chapter-12"))
}

// --- orchestrator fan-out -------------------------------------------------

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.JobRecord
	seq  int
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: make(map[string]*model.JobRecord)} }

func (f *fakeJobs) Create(_ context.Context, fp model.Fingerprint, seriesName string) (*model.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	j := &model.JobRecord{ID: fp.Key() + string(rune('a'+f.seq)), Fingerprint: fp, SeriesName: seriesName, Status: model.JobPending}
	f.jobs[j.ID] = j
	return j, nil
}
func (f *fakeJobs) Get(_ context.Context, id string) (*model.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}
func (f *fakeJobs) FindByFingerprint(context.Context, model.Fingerprint) (*model.JobRecord, error) {
	return nil, nil
}
func (f *fakeJobs) Start(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Start(at)
	return nil
}
func (f *fakeJobs) UpdateProgress(_ context.Context, id string, progress int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].UpdateProgress(progress, at)
	return nil
}
func (f *fakeJobs) Complete(_ context.Context, id string, resultRef string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Complete(resultRef, at)
	return nil
}
func (f *fakeJobs) Fail(_ context.Context, id string, msg string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Fail(msg, at)
	return nil
}

type fakeGlossary struct {
	mu      sync.Mutex
	dicts   map[string]*model.Dictionary
	entries map[string][]model.GlossaryEntry
}

func newFakeGlossary() *fakeGlossary {
	return &fakeGlossary{dicts: make(map[string]*model.Dictionary), entries: make(map[string][]model.GlossaryEntry)}
}
func (g *fakeGlossary) GetOrCreateDictionary(_ context.Context, seriesID, src, tgt string, capacity int) (*model.Dictionary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := seriesID + "|" + src + "|" + tgt
	if d, ok := g.dicts[key]; ok {
		return d, nil
	}
	d := &model.Dictionary{ID: key, SeriesID: seriesID, SourceLang: src, TargetLang: tgt, Capacity: capacity}
	g.dicts[key] = d
	return d, nil
}
func (g *fakeGlossary) Entries(_ context.Context, dictionaryID string) ([]model.GlossaryEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.GlossaryEntry(nil), g.entries[dictionaryID]...), nil
}
func (g *fakeGlossary) Upsert(_ context.Context, dictionaryID, original, translation string, kind model.ProperNounState, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[dictionaryID] = append(g.entries[dictionaryID], model.GlossaryEntry{DictionaryID: dictionaryID, Original: original, Translation: translation, IsProperNoun: kind, UsageCount: 1, LastUsedAt: at})
	return nil
}
func (g *fakeGlossary) ConfirmProperNoun(context.Context, string, string, bool) error { return nil }
func (g *fakeGlossary) Cleanup(context.Context, string, int) (int, error)             { return 0, nil }

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, texts []string, _, _ string, _ translator.Options) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "tr:" + t
	}
	return out, nil
}

type fakeOCREngine struct{}

func (fakeOCREngine) Name() string { return "fake" }
func (fakeOCREngine) Detect(context.Context, []byte) ([]model.TextBlock, error) {
	return nil, nil
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

type stubAdapter struct{}

func (stubAdapter) Name() string { return "stub" }
func (stubAdapter) ImageURLs(_ context.Context, chapterURL string) ([]string, error) {
	return []string{chapterURL + "/page1.jpg"}, nil
}

func newTestCache(t *testing.T) *resultcache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return resultcache.NewCache(client, 30*24*time.Hour, time.Hour)
}

func TestOrchestrator_Run_AllChaptersSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(solidJPEG(t, 50, 50))
	}))
	defer srv.Close()

	registry := scraper.NewRegistry(stubAdapter{})
	sc := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)
	reader := ocr.NewReader(func() (ocr.Engine, error) { return fakeOCREngine{}, nil })

	p := pipeline.New(pipeline.Config{
		Jobs:        newFakeJobs(),
		Cache:       newTestCache(t),
		Scraper:     sc,
		OCR:         reader,
		Glossary:    newFakeGlossary(),
		Translators: pipeline.Translators{model.BackendMT: fakeTranslator{}},
		Images:      imageproc.NewProcessor(imageproc.DefaultOptions()),
	})

	orch := batch.New(batch.Config{
		Pipeline:       p,
		Concurrency:    2,
		PollInterval:   10 * time.Millisecond,
		LogInterval:    time.Hour,
		ChapterTimeout: 5 * time.Second,
	})

	result, err := orch.Run(context.Background(), batch.Request{
		SampleURL:  srv.URL + "/chapter-1",
		Range:      "1-3",
		TargetLang: "en",
		Backend:    model.BackendMT,
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Completed)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, float64(100), result.Percentage())
	for n := 1; n <= 3; n++ {
		require.Equal(t, batch.StatusCompleted, result.Results[n].Status)
	}
}

func TestOrchestrator_Run_OneChapterFailsBatchContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chapter-2/page1.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(solidJPEG(t, 50, 50))
	}))
	defer srv.Close()

	registry := scraper.NewRegistry(stubAdapter{})
	sc := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)
	reader := ocr.NewReader(func() (ocr.Engine, error) { return fakeOCREngine{}, nil })

	p := pipeline.New(pipeline.Config{
		Jobs:        newFakeJobs(),
		Cache:       newTestCache(t),
		Scraper:     sc,
		OCR:         reader,
		Glossary:    newFakeGlossary(),
		Translators: pipeline.Translators{model.BackendMT: fakeTranslator{}},
		Images:      imageproc.NewProcessor(imageproc.DefaultOptions()),
	})

	orch := batch.New(batch.Config{
		Pipeline:       p,
		Concurrency:    3,
		PollInterval:   10 * time.Millisecond,
		LogInterval:    time.Hour,
		ChapterTimeout: 5 * time.Second,
	})

	result, err := orch.Run(context.Background(), batch.Request{
		SampleURL:  srv.URL + "/chapter-1",
		Range:      "1-3",
		TargetLang: "en",
		Backend:    model.BackendMT,
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Completed)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, batch.StatusFailed, result.Results[2].Status)
	require.NotEmpty(t, result.Results[2].Error)
}

func TestOrchestrator_Run_SinksCompletedChaptersWhenSeriesNameSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(solidJPEG(t, 50, 50))
	}))
	defer srv.Close()

	registry := scraper.NewRegistry(stubAdapter{})
	sc := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)
	reader := ocr.NewReader(func() (ocr.Engine, error) { return fakeOCREngine{}, nil })

	scratch, err := blobstore.NewScratchStore(t.TempDir())
	require.NoError(t, err)
	sinkRoot := t.TempDir()
	files, err := blobstore.NewLocalFileManager(sinkRoot)
	require.NoError(t, err)

	p := pipeline.New(pipeline.Config{
		Jobs:        newFakeJobs(),
		Cache:       newTestCache(t),
		Scraper:     sc,
		OCR:         reader,
		Glossary:    newFakeGlossary(),
		Translators: pipeline.Translators{model.BackendMT: fakeTranslator{}},
		Images:      imageproc.NewProcessor(imageproc.DefaultOptions()),
		Scratch:     scratch,
	})

	orch := batch.New(batch.Config{
		Pipeline:       p,
		Scratch:        scratch,
		Files:          files,
		Concurrency:    2,
		PollInterval:   10 * time.Millisecond,
		LogInterval:    time.Hour,
		ChapterTimeout: 5 * time.Second,
	})

	result, err := orch.Run(context.Background(), batch.Request{
		SampleURL:  srv.URL + "/chapter-1",
		Range:      "1",
		TargetLang: "en",
		Backend:    model.BackendMT,
		SeriesName: "My Series",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Completed)
	require.DirExists(t, filepath.Join(sinkRoot, blobstore.SanitizeFilename("My Series"), "_to_en", "chapter_0001"))
}
