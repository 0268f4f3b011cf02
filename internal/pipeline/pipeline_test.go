package pipeline_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/imageproc"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/ocr"
	"github.com/toonrelay/pipeline/internal/pipeline"
	"github.com/toonrelay/pipeline/internal/resultcache"
	"github.com/toonrelay/pipeline/internal/scraper"
	"github.com/toonrelay/pipeline/internal/translator"
)

// --- test doubles -----------------------------------------------------

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
	id := "job-" + time.Now().String() + string(rune(f.seq))
	j := &model.JobRecord{ID: id, Fingerprint: fp, SeriesName: seriesName, Status: model.JobPending}
	f.jobs[id] = j
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
	g.entries[dictionaryID] = append(g.entries[dictionaryID], model.GlossaryEntry{
		DictionaryID: dictionaryID, Original: original, Translation: translation, IsProperNoun: kind, UsageCount: 1, LastUsedAt: at,
	})
	return nil
}

func (g *fakeGlossary) ConfirmProperNoun(context.Context, string, string, bool) error { return nil }

func (g *fakeGlossary) Cleanup(context.Context, string, int) (int, error) { return 0, nil }

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, texts []string, _, _ string, _ translator.Options) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "tr:" + t
	}
	return out, nil
}

type fakeOCREngine struct {
	blocksPerPage map[int][]model.TextBlock
}

func (e *fakeOCREngine) Name() string { return "fake" }

func (e *fakeOCREngine) Detect(_ context.Context, pageBytes []byte) ([]model.TextBlock, error) {
	// The test pages are indistinguishable by bytes alone, so the stub
	// keys blocks by decoded image width instead (each test page is a
	// distinct width).
	img, _, err := image.Decode(bytes.NewReader(pageBytes))
	if err != nil {
		return nil, err
	}
	return e.blocksPerPage[img.Bounds().Dx()], nil
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

type stubAdapter struct{ urls []string }

func (s *stubAdapter) Name() string { return "stub" }
func (s *stubAdapter) ImageURLs(context.Context, string) ([]string, error) { return s.urls, nil }

func newTestCache(t *testing.T) *resultcache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return resultcache.NewCache(client, 30*24*time.Hour, time.Hour)
}

// --- tests --------------------------------------------------------------

func TestPipeline_Run_EmptyOCRPassesPagesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(solidJPEG(t, 100, 50))
	}))
	defer srv.Close()

	registry := scraper.NewRegistry(&stubAdapter{urls: []string{srv.URL + "/1"}})
	sc := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)

	reader := ocr.NewReader(func() (ocr.Engine, error) {
		return &fakeOCREngine{blocksPerPage: map[int][]model.TextBlock{}}, nil
	})

	scratch, err := blobstore.NewScratchStore(t.TempDir())
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

	result, err := p.Run(context.Background(), pipeline.Input{
		ChapterURL: "https://example.com/c/1",
		TargetLang: "en",
		Backend:    model.BackendMT,
	})
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	require.Empty(t, result.Blocks)
}

func TestPipeline_Run_TranslatesAndRendersBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(solidJPEG(t, 400, 300))
	}))
	defer srv.Close()

	registry := scraper.NewRegistry(&stubAdapter{urls: []string{srv.URL + "/1"}})
	sc := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)

	blocks := map[int][]model.TextBlock{
		400: {{Box: model.BBox{X0: 10, Y0: 10, X1: 200, Y1: 80}, Text: "hello there", Confidence: 0.9}},
	}
	reader := ocr.NewReader(func() (ocr.Engine, error) { return &fakeOCREngine{blocksPerPage: blocks}, nil })

	scratch, err := blobstore.NewScratchStore(t.TempDir())
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

	result, err := p.Run(context.Background(), pipeline.Input{
		ChapterURL: "https://example.com/c/2",
		TargetLang: "en",
		Backend:    model.BackendMT,
	})
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	require.Equal(t, "tr:hello there", result.Blocks[0].Translation)
	require.NotEmpty(t, result.Pages[0].ImageRef)
}

func TestPipeline_Run_CacheHitSkipsEverything(t *testing.T) {
	cache := newTestCache(t)
	fp := model.Fingerprint{ChapterURL: "https://example.com/c/3", TargetLang: "en", Backend: model.BackendMT}
	preloaded := &model.ChapterResult{Fingerprint: fp, SeriesName: "preloaded"}
	require.NoError(t, cache.Set(context.Background(), fp, preloaded))

	p := pipeline.New(pipeline.Config{
		Jobs:        newFakeJobs(),
		Cache:       cache,
		Scraper:     scraper.New(scraper.NewRegistry(&stubAdapter{}), scraper.NewDownloader(http.DefaultClient), time.Second),
		OCR:         ocr.NewReader(func() (ocr.Engine, error) { return nil, nil }),
		Glossary:    newFakeGlossary(),
		Translators: pipeline.Translators{model.BackendMT: fakeTranslator{}},
		Images:      imageproc.NewProcessor(imageproc.DefaultOptions()),
	})

	result, err := p.Run(context.Background(), pipeline.Input{
		ChapterURL: fp.ChapterURL, TargetLang: fp.TargetLang, Backend: fp.Backend,
	})
	require.NoError(t, err)
	require.Equal(t, "preloaded", result.SeriesName)
}
