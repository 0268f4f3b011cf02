// Package pipeline sequences one chapter's translation from a bare URL to
// a finished, cached ChapterResult: check the result cache, acquire the
// fingerprint's lock, fetch pages, OCR them, translate the flat text list
// against the series glossary, inpaint and re-render every page, then
// cache and (optionally) publish the result. Every phase reports progress
// to the job store so a caller can poll a single JobRecord for status.
package pipeline

import (
	"context"
	"time"

	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/glossary"
	"github.com/toonrelay/pipeline/internal/imageproc"
	"github.com/toonrelay/pipeline/internal/jobstore"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/ocr"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/resultcache"
	"github.com/toonrelay/pipeline/internal/scraper"
	"github.com/toonrelay/pipeline/internal/translator"
)

// Progress percentages per §4.8's phase table.
const (
	progressFetch      = 10
	progressOCR        = 30
	progressTranslate  = 50
	progressRenderBase = 70
	progressRenderSpan = 20 // image process runs 70..90
	progressDone       = 100
)

const (
	defaultGlossaryCapacity = 1000
	defaultMinKeepUsage     = 2
)

// Translators maps a Backend to the Translator implementation that serves
// it, so the pipeline never branches on backend beyond a map lookup.
type Translators map[model.Backend]translator.Translator

// Config wires every external collaborator the pipeline needs. All fields
// are required except Scratch and Publish. Scratch is nil-safe: without it,
// final page bytes still flow through in memory but aren't retained on disk
// for a later publish step to copy from. A nil Publish skips publishing.
type Config struct {
	Jobs        jobstore.Store
	Cache       *resultcache.Cache
	Scraper     *scraper.Scraper
	OCR         *ocr.Reader
	Glossary    glossary.Store
	Translators Translators
	Images      *imageproc.Processor
	Scratch     *blobstore.ScratchStore

	GlossaryCapacity int
	MinKeepUsage     int

	// Publish is invoked after a freshly built result is cached, only when
	// the request carried a series identity. It is a function hook rather
	// than a direct dependency on the publisher package to avoid an import
	// cycle (publisher needs batch's URL-templating helpers, batch needs
	// pipeline): the concrete Publisher is wired in by cmd/pipelineserver.
	// A publish failure is logged and never fails the job, per §7's
	// Storage error policy ("job still marked COMPLETED... publish
	// reported as warning").
	Publish func(ctx context.Context, in Input, result *model.ChapterResult) error
}

// Pipeline runs one chapter at a time; it holds no per-call state, so a
// single instance is reused across every job.
type Pipeline struct {
	cfg Config
}

// New validates cfg's defaults and returns a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.GlossaryCapacity <= 0 {
		cfg.GlossaryCapacity = defaultGlossaryCapacity
	}
	if cfg.MinKeepUsage <= 0 {
		cfg.MinKeepUsage = defaultMinKeepUsage
	}
	return &Pipeline{cfg: cfg}
}

// Input describes one chapter translation request.
type Input struct {
	ChapterURL string
	TargetLang string
	SourceLang string // optional; detected from the URL when empty
	Backend    model.Backend
	SeriesName string // optional; enables glossary grouping and publish
	SeriesID   string // optional; if known, used instead of deriving one
}

// Run executes the full pipeline for one chapter and returns the finished
// result. The job store is updated throughout; on any error the job is
// marked FAILED with the error's message and the lock (if acquired) is
// always released.
func (p *Pipeline) Run(ctx context.Context, in Input) (*model.ChapterResult, error) {
	if in.SourceLang == "" {
		in.SourceLang = detectSourceLang(in.ChapterURL)
	}

	fp := model.Fingerprint{ChapterURL: in.ChapterURL, TargetLang: in.TargetLang, Backend: in.Backend}

	job, err := p.cfg.Jobs.Create(ctx, fp, in.SeriesName)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.Run", err)
	}

	result, err := p.runLocked(ctx, job.ID, fp, in)
	if err != nil {
		if failErr := p.cfg.Jobs.Fail(ctx, job.ID, err.Error(), time.Now()); failErr != nil {
			logger.Error("pipeline failed to record job failure", "module", "pipeline", "action", "fail", "resource", job.ID, "result", "error", "error", failErr)
		}
		return nil, err
	}
	return result, nil
}

// Submit creates the job record synchronously and runs the rest of the
// pipeline in the background, returning immediately. It exists for
// callers — the HTTP control plane, the batch orchestrator's eventual
// replacement — that want a job ID to hand back to a client right away
// rather than block for the whole chapter build; poll Jobs.Get(id) for
// status. Failure handling matches Run: the job is marked FAILED with the
// error's message and the lock is always released.
func (p *Pipeline) Submit(ctx context.Context, in Input) (*model.JobRecord, error) {
	if in.SourceLang == "" {
		in.SourceLang = detectSourceLang(in.ChapterURL)
	}

	fp := model.Fingerprint{ChapterURL: in.ChapterURL, TargetLang: in.TargetLang, Backend: in.Backend}

	job, err := p.cfg.Jobs.Create(ctx, fp, in.SeriesName)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.Submit", err)
	}

	go func() {
		bgCtx := context.WithoutCancel(ctx)
		if _, err := p.runLocked(bgCtx, job.ID, fp, in); err != nil {
			if failErr := p.cfg.Jobs.Fail(bgCtx, job.ID, err.Error(), time.Now()); failErr != nil {
				logger.Error("pipeline failed to record job failure", "module", "pipeline", "action", "fail", "resource", job.ID, "result", "error", "error", failErr)
			}
		}
	}()

	return job, nil
}

// runLocked implements the cache-check / lock-acquire / build / release
// sequence. It is split out from Run so every exit path funnels through
// one place that records the job's terminal state.
func (p *Pipeline) runLocked(ctx context.Context, jobID string, fp model.Fingerprint, in Input) (*model.ChapterResult, error) {
	if err := p.cfg.Jobs.Start(ctx, jobID, time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.runLocked", err)
	}

	if cached, err := p.cfg.Cache.Get(ctx, fp); err != nil {
		return nil, err
	} else if cached != nil {
		logger.Info("pipeline cache hit", "module", "pipeline", "action", "cache_check", "resource", fp.String(), "result", "hit")
		if err := p.cfg.Jobs.Complete(ctx, jobID, fp.Key(), time.Now()); err != nil {
			return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.runLocked", err)
		}
		return cached, nil
	}

	lock, err := p.cfg.Cache.TryLock(ctx, fp)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer func() {
			if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
				logger.Error("pipeline failed to release lock", "module", "pipeline", "action", "release_lock", "resource", fp.String(), "result", "error", "error", relErr)
			}
		}()
	}
	// lock == nil means another worker already holds it; per §4.7 the
	// pipeline still proceeds (fail-open) rather than blocking here, and
	// nothing upstream coalesces duplicate builds of the same fingerprint.

	result, err := p.build(ctx, jobID, fp, in)
	if err != nil {
		return nil, err
	}

	if err := p.cfg.Cache.Set(ctx, fp, result); err != nil {
		// A cache-write failure doesn't invalidate a job that already
		// produced a correct result; the job still completes.
		logger.Error("pipeline cache write failed", "module", "pipeline", "action", "cache_write", "resource", fp.String(), "result", "error", "error", err)
	}
	p.publish(ctx, in, result)
	if err := p.cfg.Jobs.Complete(ctx, jobID, fp.Key(), time.Now()); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "pipeline.runLocked", err)
	}
	return result, nil
}

// publish hands a freshly built result to the Publisher hook when the
// caller supplied a series identity, per §2's data-flow description. A
// publish failure is a warning, never a job failure: the translation is
// already cached and correct.
func (p *Pipeline) publish(ctx context.Context, in Input, result *model.ChapterResult) {
	if p.cfg.Publish == nil || in.SeriesName == "" {
		return
	}
	if err := p.cfg.Publish(context.WithoutCancel(ctx), in, result); err != nil {
		logger.Error("pipeline publish failed", "module", "pipeline", "action", "publish", "resource", in.ChapterURL, "result", "warning", "error", err)
	}
}
