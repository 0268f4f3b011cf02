package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/glossary"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/ner"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/scraper"
	"github.com/toonrelay/pipeline/internal/translator"
)

// cpuConcurrency bounds OCR and image-processing fan-out per chapter, per
// §5's "bounded executor (default 4 threads)" for CPU-heavy stages.
const cpuConcurrency = 4

// build runs fetch -> OCR -> translate -> image-process for one chapter
// and assembles the ChapterResult. The caller (runLocked) owns the
// cache/lock bracketing; build only ever returns a result on full success.
func (p *Pipeline) build(ctx context.Context, jobID string, fp model.Fingerprint, in Input) (*model.ChapterResult, error) {
	pages, err := p.cfg.Scraper.Fetch(ctx, in.ChapterURL)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Jobs.UpdateProgress(ctx, jobID, progressFetch, time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.build", err)
	}

	ocrResult, err := p.runOCR(ctx, pages)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Jobs.UpdateProgress(ctx, jobID, progressOCR, time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.build", err)
	}

	flatBlocks := ocrResult.Flatten()
	if len(flatBlocks) == 0 {
		logger.Info("pipeline has no detected text, passing pages through", "module", "pipeline", "action", "ocr", "resource", fp.String(), "result", "empty")
		return p.finishNoText(ctx, jobID, fp, in, pages)
	}

	translations, err := p.runTranslateStep(ctx, in, flatBlocks)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Jobs.UpdateProgress(ctx, jobID, progressTranslate, time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.build", err)
	}

	finalPages, cleanedPages, err := p.renderPages(ctx, jobID, pages, ocrResult, translations)
	if err != nil {
		return nil, err
	}

	return p.assembleResult(ctx, fp, in, finalPages, cleanedPages, flatBlocks, translations)
}

// runOCR detects text blocks on every page concurrently, bounded by
// cpuConcurrency, preserving page order in the returned ChapterOCR.
func (p *Pipeline) runOCR(ctx context.Context, pages []scraper.Page) (model.ChapterOCR, error) {
	result := model.ChapterOCR{Pages: make([][]model.TextBlock, len(pages))}

	sem := semaphore.NewWeighted(cpuConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, pg := range pages {
		pg := pg
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			blocks, err := p.cfg.OCR.Detect(gctx, pg.Bytes)
			if err != nil {
				return err
			}
			for i := range blocks {
				blocks[i].PageIndex = pg.Index
			}
			result.Pages[pg.Index] = blocks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.ChapterOCR{}, pipelineerr.New(pipelineerr.KindUpstream, "pipeline.runOCR", err)
	}
	return result, nil
}

// renderPages inpaints and redraws every page concurrently, bounded by
// cpuConcurrency, reporting incremental progress across the
// progressRenderBase..progressRenderBase+progressRenderSpan range as pages
// complete.
func (p *Pipeline) renderPages(ctx context.Context, jobID string, pages []scraper.Page, ocrResult model.ChapterOCR, translations []string) ([]blobstore.PageImage, []blobstore.PageImage, error) {
	finalPages := make([]blobstore.PageImage, len(pages))
	cleanedPages := make([]blobstore.PageImage, len(pages))

	// translations is aligned to the flat, page-major block list; slice it
	// back out per page using each page's block count.
	perPageTranslations := make([][]string, len(pages))
	offset := 0
	for i, blocks := range ocrResult.Pages {
		perPageTranslations[i] = translations[offset : offset+len(blocks)]
		offset += len(blocks)
	}

	var completed int64
	var mu sync.Mutex

	sem := semaphore.NewWeighted(cpuConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, pg := range pages {
		i, pg := i, pg
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			res, err := p.cfg.Images.Process(pg.Bytes, ocrResult.Pages[i], perPageTranslations[i])
			if err != nil {
				return err
			}
			finalPages[i] = blobstore.PageImage{Index: i, Bytes: res.Final, Ext: extFor(res.Format)}
			cleanedPages[i] = blobstore.PageImage{Index: i, Bytes: res.Cleaned, Ext: extFor(res.Format)}

			mu.Lock()
			completed++
			progress := progressRenderBase + int(completed)*progressRenderSpan/len(pages)
			mu.Unlock()
			if updErr := p.cfg.Jobs.UpdateProgress(gctx, jobID, progress, time.Now()); updErr != nil {
				logger.Error("pipeline progress update failed", "module", "pipeline", "action", "image_process", "resource", jobID, "result", "error", "error", updErr)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, pipelineerr.New(pipelineerr.KindInvariant, "pipeline.renderPages", err)
	}
	return finalPages, cleanedPages, nil
}

// finishNoText handles the empty-OCR path: the source pages pass through
// unchanged, no translator call is made, and the job still completes.
func (p *Pipeline) finishNoText(ctx context.Context, jobID string, fp model.Fingerprint, in Input, pages []scraper.Page) (*model.ChapterResult, error) {
	if err := p.cfg.Jobs.UpdateProgress(ctx, jobID, progressTranslate, time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.finishNoText", err)
	}

	finalPages := make([]blobstore.PageImage, len(pages))
	for i, pg := range pages {
		finalPages[i] = blobstore.PageImage{Index: i, Bytes: pg.Bytes, Ext: extFor(pg.Format)}
	}
	if err := p.cfg.Jobs.UpdateProgress(ctx, jobID, progressRenderBase+progressRenderSpan, time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.finishNoText", err)
	}

	return p.assembleResult(ctx, fp, in, finalPages, finalPages, nil, nil)
}

// assembleResult persists final/cleaned page bytes to scratch storage (if
// configured) and builds the cacheable ChapterResult.
func (p *Pipeline) assembleResult(ctx context.Context, fp model.Fingerprint, in Input, finalPages, cleanedPages []blobstore.PageImage, flatBlocks []model.TextBlock, translations []string) (*model.ChapterResult, error) {
	var refs, cleanedRefs []string
	if p.cfg.Scratch != nil {
		var err error
		refs, cleanedRefs, err = p.cfg.Scratch.Put(ctx, fp.Key(), finalPages, cleanedPages)
		if err != nil {
			return nil, err
		}
	}

	renderedPages := make([]model.RenderedPage, len(finalPages))
	renderedCleaned := make([]model.RenderedPage, len(cleanedPages))
	for i, pg := range finalPages {
		ref := ""
		if i < len(refs) {
			ref = refs[i]
		}
		renderedPages[i] = model.RenderedPage{Index: pg.Index, ImageRef: ref}
	}
	for i, pg := range cleanedPages {
		ref := ""
		if i < len(cleanedRefs) {
			ref = cleanedRefs[i]
		}
		renderedCleaned[i] = model.RenderedPage{Index: pg.Index, ImageRef: ref}
	}

	blocks := make([]model.TranslatedBlock, len(flatBlocks))
	for i, b := range flatBlocks {
		tr := ""
		if i < len(translations) {
			tr = translations[i]
		}
		blocks[i] = model.TranslatedBlock{TextBlock: b, Translation: tr}
	}

	return &model.ChapterResult{
		Fingerprint:  fp,
		SeriesName:   in.SeriesName,
		Pages:        renderedPages,
		CleanedPages: renderedCleaned,
		Blocks:       blocks,
		CreatedAt:    time.Now(),
	}, nil
}

func extFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// runTranslateStep looks up (or creates) the chapter's glossary
// dictionary, translates the flat block text against it, enforces
// glossary consistency on the output, and seeds the glossary with any new
// proper nouns NER finds in the result.
func (p *Pipeline) runTranslateStep(ctx context.Context, in Input, blocks []model.TextBlock) ([]string, error) {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}

	tr, ok := p.cfg.Translators[in.Backend]
	if !ok {
		return nil, pipelineerr.Wrap(pipelineerr.KindInvariant, "pipeline.runTranslateStep", fmt.Sprintf("no translator configured for backend %s", in.Backend))
	}

	dict, err := p.cfg.Glossary.GetOrCreateDictionary(ctx, seriesKey(in), in.SourceLang, in.TargetLang, p.cfg.GlossaryCapacity)
	if err != nil {
		return nil, err
	}
	entries, err := p.cfg.Glossary.Entries(ctx, dict.ID)
	if err != nil {
		return nil, err
	}

	opts := translator.Options{Glossary: glossaryTerms(entries)}
	translations, err := tr.Translate(ctx, texts, in.SourceLang, in.TargetLang, opts)
	if err != nil {
		return nil, err
	}
	if len(translations) != len(texts) {
		logger.Warn("translator returned mismatched count", "module", "pipeline", "action", "translate", "resource", in.ChapterURL, "result", "mismatch", "want", len(texts), "got", len(translations))
	}

	enforced := make([]string, len(translations))
	for i, t := range translations {
		enforced[i] = sanitizeTranslation(glossary.Apply(t, entries))
	}

	p.seedGlossary(ctx, dict.ID, enforced)

	if _, err := p.cfg.Glossary.Cleanup(ctx, dict.ID, p.cfg.MinKeepUsage); err != nil {
		logger.Error("glossary cleanup failed", "module", "pipeline", "action", "glossary_cleanup", "resource", dict.ID, "result", "error", "error", err)
	}

	return enforced, nil
}

// seedGlossary runs NER over the translated output and upserts any new
// proper noun candidate under identity translation (Original ==
// Translation): names typically pass through untranslated, and a future
// Apply pass will keep them consistent once a human (or repeated sighting)
// confirms or corrects the entry. Candidates are upserted as
// ProperNounAuto, never ConfirmedYes — an automated NER guess is not a
// human confirmation, and Upsert's conflict clause leaves any existing
// confirmed state alone per §4.3.
func (p *Pipeline) seedGlossary(ctx context.Context, dictionaryID string, texts []string) {
	candidates := ner.Extract(texts)
	now := time.Now()
	for _, c := range candidates {
		if err := p.cfg.Glossary.Upsert(ctx, dictionaryID, c.Name, c.Name, model.ProperNounAuto, now); err != nil {
			logger.Error("glossary seed upsert failed", "module", "pipeline", "action", "ner_seed", "resource", c.Name, "result", "error", "error", err)
		}
	}
}

func glossaryTerms(entries []model.GlossaryEntry) []translator.GlossaryTerm {
	terms := make([]translator.GlossaryTerm, len(entries))
	for i, e := range entries {
		terms[i] = translator.GlossaryTerm{Original: e.Original, Translation: e.Translation}
	}
	sort.Slice(terms, func(i, j int) bool { return len(terms[i].Original) > len(terms[j].Original) })
	return terms
}
