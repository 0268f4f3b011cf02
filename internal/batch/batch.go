package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipeline"
)

// Default tuning per §4.9/§5: 1s poll tick, a progress log no more than
// every 60s, and a 20 minute hard per-chapter deadline.
const (
	defaultConcurrency    = 4
	defaultPollInterval   = time.Second
	defaultLogInterval    = 60 * time.Second
	defaultChapterTimeout = 20 * time.Minute
)

// Status is one chapter's terminal (or in-flight) state within a batch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ChapterOutcome is one chapter's final status within a Result.
type ChapterOutcome struct {
	Number  int
	URL     string
	Status  Status
	Error   string
	Result  *model.ChapterResult
}

// Result is a batch's aggregate outcome. Results is keyed by chapter number
// so a caller can recover per-chapter index even though chapters may
// complete out of submission order.
type Result struct {
	Total     int
	Completed int
	Failed    int
	Results   map[int]ChapterOutcome
}

// Percentage reports the batch's completed+failed share of Total as a
// percentage, per §4.9's "completed/total" progress reporting.
func (r Result) Percentage() float64 {
	if r.Total == 0 {
		return 100
	}
	return float64(r.Completed+r.Failed) / float64(r.Total) * 100
}

// Request describes one batch submission: a sample chapter URL whose
// numeric segment BuildURL substitutes per chapter number, a range
// expression, and the translation parameters every chapter shares.
type Request struct {
	SampleURL  string
	Range      string
	TargetLang string
	SourceLang string
	Backend    model.Backend
	SeriesName string
	SeriesID   string
}

// Config wires an Orchestrator's collaborators. Files and Scratch are both
// optional: without them, completed chapters are translated and cached but
// never sunk to the blob store (no "optional sink" per §4.9).
type Config struct {
	Pipeline *pipeline.Pipeline
	Scratch  *blobstore.ScratchStore
	Files    blobstore.FileManager

	Concurrency    int
	PollInterval   time.Duration
	LogInterval    time.Duration
	ChapterTimeout time.Duration
}

// Orchestrator expands a chapter range into URLs and fans translation work
// for each one across the Pipeline, bounded by a worker pool sized by
// Concurrency, per §4.9.
type Orchestrator struct {
	cfg Config
}

// New returns an Orchestrator with cfg's defaults applied.
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = defaultLogInterval
	}
	if cfg.ChapterTimeout <= 0 {
		cfg.ChapterTimeout = defaultChapterTimeout
	}
	return &Orchestrator{cfg: cfg}
}

// Run expands req's range, submits one Pipeline task per chapter bounded by
// the orchestrator's worker pool, and returns the aggregate Result. Run
// itself never returns an error for a single chapter's failure: per §8
// scenario 5, a failing chapter is recorded in Results and the batch
// continues.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	numbers, err := ParseRange(req.Range)
	if err != nil {
		return nil, err
	}

	res := &Result{Total: len(numbers), Results: make(map[int]ChapterOutcome, len(numbers))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, n := range numbers {
		n := n
		chapterURL := BuildURL(req.SampleURL, n)
		g.Go(func() error {
			outcome := o.runChapter(gctx, chapterURL, n, req)

			mu.Lock()
			res.Results[n] = outcome
			if outcome.Status == StatusCompleted {
				res.Completed++
			} else {
				res.Failed++
			}
			pct := res.Percentage()
			mu.Unlock()

			logger.Info("batch chapter finished", "module", "batch", "action", "chapter_done", "resource", chapterURL, "result", string(outcome.Status), "progress_pct", pct)
			return nil // a failed chapter never aborts the batch
		})
	}

	// Every goroutine above returns nil, so g.Wait returns nil; a chapter
	// failure or a cancelled ctx shows up only in that chapter's outcome.
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// runChapter runs one chapter's Pipeline task and waits on it through a
// non-blocking poll loop rather than a direct join, per §4.9's "must not
// use blocking joins that would deadlock the pool": the Pipeline task runs
// in its own goroutine while this one only ever selects on a timer or the
// result channel, so the worker-pool slot stays responsive to cancellation
// the whole time.
func (o *Orchestrator) runChapter(ctx context.Context, chapterURL string, number int, req Request) ChapterOutcome {
	deadline, cancel := context.WithTimeout(ctx, o.cfg.ChapterTimeout)
	defer cancel()

	type outcome struct {
		result *model.ChapterResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := o.cfg.Pipeline.Run(deadline, pipeline.Input{
			ChapterURL: chapterURL,
			TargetLang: req.TargetLang,
			SourceLang: req.SourceLang,
			Backend:    req.Backend,
			SeriesName: req.SeriesName,
			SeriesID:   req.SeriesID,
		})
		resultCh <- outcome{result, err}
	}()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	lastLog := start
	for {
		select {
		case out := <-resultCh:
			if out.err != nil {
				return ChapterOutcome{Number: number, URL: chapterURL, Status: StatusFailed, Error: out.err.Error()}
			}
			o.sink(ctx, req, number, out.result)
			return ChapterOutcome{Number: number, URL: chapterURL, Status: StatusCompleted, Result: out.result}

		case <-ticker.C:
			if time.Since(lastLog) >= o.cfg.LogInterval {
				logger.Info("batch chapter still running", "module", "batch", "action", "poll", "resource", chapterURL, "result", "pending", "elapsed_s", int(time.Since(start).Seconds()))
				lastLog = time.Now()
			}

		case <-deadline.Done():
			return ChapterOutcome{Number: number, URL: chapterURL, Status: StatusFailed, Error: fmt.Sprintf("chapter timed out after %s", o.cfg.ChapterTimeout)}
		}
	}
}

// sink persists a completed chapter's pages to the optional FileManager.
// Per §4.9, the sink only runs when a series name was supplied; a sink
// failure is logged but never turns a completed chapter into a failed one
// (the translation is already cached).
func (o *Orchestrator) sink(ctx context.Context, req Request, number int, result *model.ChapterResult) {
	if o.cfg.Files == nil || o.cfg.Scratch == nil || req.SeriesName == "" {
		return
	}

	pages, err := o.loadPages(ctx, result.Pages)
	if err != nil {
		logger.Error("batch sink failed to load pages", "module", "batch", "action", "sink", "resource", req.SeriesName, "result", "error", "error", err)
		return
	}
	cleaned, err := o.loadPages(ctx, result.CleanedPages)
	if err != nil {
		logger.Error("batch sink failed to load cleaned pages", "module", "batch", "action", "sink", "resource", req.SeriesName, "result", "error", "error", err)
		return
	}

	meta := blobstore.Metadata{
		Series:        req.SeriesName,
		ChapterNumber: number,
		SourceLang:    req.SourceLang,
		TargetLang:    req.TargetLang,
		PageCount:     len(pages),
		SavedAt:       time.Now(),
	}
	if _, err := o.cfg.Files.Save(ctx, req.SeriesName, number, pages, meta, req.SourceLang, req.TargetLang, cleaned); err != nil {
		logger.Error("batch sink save failed", "module", "batch", "action", "sink", "resource", req.SeriesName, "result", "error", "error", err)
	}
}

func (o *Orchestrator) loadPages(ctx context.Context, rendered []model.RenderedPage) ([]blobstore.PageImage, error) {
	pages := make([]blobstore.PageImage, 0, len(rendered))
	for _, rp := range rendered {
		if rp.ImageRef == "" {
			continue
		}
		data, err := o.cfg.Scratch.Get(ctx, rp.ImageRef)
		if err != nil {
			return nil, err
		}
		pages = append(pages, blobstore.PageImage{Index: rp.Index, Bytes: data, Ext: strings.TrimPrefix(filepath.Ext(rp.ImageRef), ".")})
	}
	return pages, nil
}
