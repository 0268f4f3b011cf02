// Package publisher commits a finished chapter translation atomically to
// the catalog: resolving (or creating) its Series, upserting its Chapter
// row, and replacing or keeping its Translation row per §4.10.
package publisher

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/toonrelay/pipeline/internal/batch"
	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/resultcache"
)

// Request describes one chapter ready to publish: the pipeline's finished
// result plus the metadata needed to place it in the catalog.
type Request struct {
	ChapterURL      string
	SeriesName      string
	SourceLang      string
	TargetLang      string
	Backend         model.Backend
	Result          *model.ChapterResult
	ReplaceExisting bool
}

// Outcome reports what Publish actually did, for callers (the batch
// orchestrator, an HTTP handler) that want to log or display it.
type Outcome struct {
	SeriesID      string
	ChapterID     string
	TranslationID string
	StoragePath   string
	SeriesCreated bool
	Committed     bool // false when replace_existing=false skipped an existing row
}

// Config wires a Publisher's collaborators.
type Config struct {
	Store   CatalogStore
	Files   blobstore.FileManager
	Scratch *blobstore.ScratchStore
	Cache   *resultcache.Cache
}

// Publisher commits one finished chapter at a time.
type Publisher struct {
	cfg Config
}

// New returns a Publisher.
func New(cfg Config) *Publisher {
	return &Publisher{cfg: cfg}
}

// Publish resolves req's series, extracts its chapter number from the URL,
// writes its pages to the blob store, and commits the catalog row(s) in one
// transaction, per §4.10's atomicity and conflict-resolution rules.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Outcome, error) {
	series, created, err := p.resolveSeries(ctx, req)
	if err != nil {
		return nil, err
	}

	chapterNumber := float64(batch.ChapterNumberFromURL(req.ChapterURL))
	existingChapter, err := p.cfg.Store.FindChapterByNumber(ctx, series.ID, chapterNumber)
	if err != nil {
		return nil, err
	}
	chapter := buildChapter(series.ID, chapterNumber, req, existingChapter)

	existingTranslation, err := p.cfg.Store.FindTranslation(ctx, chapter.ID, req.SourceLang, req.TargetLang)
	if err != nil {
		return nil, err
	}

	pages, cleaned, err := p.loadPages(ctx, req.Result)
	if err != nil {
		return nil, err
	}

	meta := blobstore.Metadata{
		Series:        req.SeriesName,
		ChapterNumber: int(chapterNumber),
		SourceLang:    req.SourceLang,
		TargetLang:    req.TargetLang,
		PageCount:     len(pages),
		SavedAt:       time.Now(),
	}
	storagePath, err := p.cfg.Files.Save(ctx, req.SeriesName, int(chapterNumber), pages, meta, req.SourceLang, req.TargetLang, cleaned)
	if err != nil {
		return nil, err
	}

	replacing := existingTranslation != nil
	if replacing && !req.ReplaceExisting {
		logger.Info("publisher kept existing translation", "module", "publisher", "action", "publish", "resource", req.ChapterURL, "result", "skipped")
		return &Outcome{SeriesID: series.ID, ChapterID: chapter.ID, TranslationID: existingTranslation.ID, StoragePath: storagePath, SeriesCreated: created, Committed: false}, nil
	}

	translation := buildTranslation(chapter.ID, req, pages, storagePath, existingTranslation)

	if err := p.cfg.Store.Commit(ctx, CommitInput{Series: *series, Chapter: chapter, Translation: translation}); err != nil {
		if rmErr := p.cfg.Files.Remove(ctx, storagePath); rmErr != nil {
			logger.Error("publisher failed to roll back blob after commit failure", "module", "publisher", "action", "rollback", "resource", storagePath, "result", "error", "error", rmErr)
		}
		return nil, err
	}

	if err := p.invalidateCache(ctx, series, req); err != nil {
		logger.Error("publisher cache invalidation failed", "module", "publisher", "action", "invalidate_cache", "resource", series.ID, "result", "error", "error", err)
	}

	return &Outcome{
		SeriesID: series.ID, ChapterID: chapter.ID, TranslationID: translation.ID,
		StoragePath: storagePath, SeriesCreated: created, Committed: true,
	}, nil
}

// resolveSeries finds an existing series by exact normalized title, then by
// fuzzy match, creating a new one only if neither succeeds. When a match is
// found, only its unset metadata fields are filled in from req — a
// populated field is never overwritten, per §4.10.
func (p *Publisher) resolveSeries(ctx context.Context, req Request) (*model.Series, bool, error) {
	normalized := normalizeTitle(req.SeriesName)
	if normalized == "" {
		return nil, false, pipelineerr.Wrap(pipelineerr.KindInvariant, "publisher.resolveSeries", "series name required to publish")
	}

	existing, err := p.cfg.Store.FindSeriesByNormalizedTitle(ctx, normalized)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		titles, err := p.cfg.Store.ListNormalizedTitles(ctx)
		if err != nil {
			return nil, false, err
		}
		candidates := make([]string, 0, len(titles))
		for t := range titles {
			candidates = append(candidates, t)
		}
		if match, ok := bestFuzzyMatch(normalized, candidates); ok {
			existing, err = p.cfg.Store.GetSeries(ctx, titles[match])
			if err != nil {
				return nil, false, err
			}
		}
	}

	if existing == nil {
		return &model.Series{ID: NewSeriesID(), Title: req.SeriesName, SourceLang: req.SourceLang, TargetLang: req.TargetLang}, true, nil
	}

	merged := *existing
	if merged.Title == "" {
		merged.Title = req.SeriesName
	}
	if merged.SourceLang == "" {
		merged.SourceLang = req.SourceLang
	}
	if merged.TargetLang == "" {
		merged.TargetLang = req.TargetLang
	}
	return &merged, false, nil
}

// buildChapter sets source_url on the chapter row that already exists at
// this number, keeping its other fields, or creates a fresh one otherwise.
// The chapter is committed together with the Translation, so when a
// translation already exists and ReplaceExisting is false, Publish returns
// before Commit and the existing chapter row is left unchanged too.
func buildChapter(seriesID string, number float64, req Request, existing *model.Chapter) model.Chapter {
	if existing != nil {
		updated := *existing
		updated.SourceURL = req.ChapterURL
		return updated
	}
	return model.Chapter{ID: NewChapterID(), SeriesID: seriesID, Number: number, SourceURL: req.ChapterURL}
}

func buildTranslation(chapterID string, req Request, pages []blobstore.PageImage, storagePath string, existing *model.Translation) model.Translation {
	refs := make([]string, len(pages))
	for i, pg := range pages {
		refs[i] = filepath.Join(storagePath, fmt.Sprintf("page_%03d.%s", pg.Index+1, pg.Ext))
	}
	id := NewTranslationID()
	if existing != nil {
		id = existing.ID
	}
	return model.Translation{
		ID: id, ChapterID: chapterID, SourceLang: req.SourceLang, TargetLang: req.TargetLang,
		Backend: req.Backend, PageRefs: refs, StoragePath: storagePath, CreatedAt: time.Now(),
	}
}

func (p *Publisher) loadPages(ctx context.Context, result *model.ChapterResult) ([]blobstore.PageImage, []blobstore.PageImage, error) {
	if p.cfg.Scratch == nil {
		return nil, nil, pipelineerr.Wrap(pipelineerr.KindInvariant, "publisher.loadPages", "scratch store required to publish")
	}
	pages, err := p.loadRendered(ctx, result.Pages)
	if err != nil {
		return nil, nil, err
	}
	cleaned, err := p.loadRendered(ctx, result.CleanedPages)
	if err != nil {
		return nil, nil, err
	}
	return pages, cleaned, nil
}

func (p *Publisher) loadRendered(ctx context.Context, rendered []model.RenderedPage) ([]blobstore.PageImage, error) {
	pages := make([]blobstore.PageImage, 0, len(rendered))
	for _, rp := range rendered {
		if rp.ImageRef == "" {
			continue
		}
		data, err := p.cfg.Scratch.Get(ctx, rp.ImageRef)
		if err != nil {
			return nil, err
		}
		pages = append(pages, blobstore.PageImage{Index: rp.Index, Bytes: data, Ext: strings.TrimPrefix(filepath.Ext(rp.ImageRef), ".")})
	}
	return pages, nil
}

// invalidateCache drops the cached result for this exact fingerprint and
// sweeps every cached chapter under the series' host, per §4.10's "cache is
// invalidated for the chapter and its series".
func (p *Publisher) invalidateCache(ctx context.Context, series *model.Series, req Request) error {
	if p.cfg.Cache == nil {
		return nil
	}
	fp := model.Fingerprint{ChapterURL: req.ChapterURL, TargetLang: req.TargetLang, Backend: req.Backend}
	if err := p.cfg.Cache.Delete(ctx, fp); err != nil {
		return err
	}
	if prefix := hostPrefix(req.ChapterURL); prefix != "" {
		if _, err := p.cfg.Cache.InvalidateSeries(ctx, prefix); err != nil {
			return err
		}
	}
	return nil
}

func hostPrefix(chapterURL string) string {
	u, err := url.Parse(chapterURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
