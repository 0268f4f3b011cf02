package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/toonrelay/pipeline/internal/batch"
	"github.com/toonrelay/pipeline/internal/jobstore"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipeline"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/repository"
)

// Handler serves the control plane's job/batch/health endpoints. It holds
// no state of its own beyond references to the collaborators that do.
type Handler struct {
	Pipeline *pipeline.Pipeline
	Batch    *batch.Orchestrator
	Jobs     jobstore.Store
	Settings repository.SettingsRepository
}

// NewHandler builds a Handler around the pipeline's wired collaborators.
func NewHandler(p *pipeline.Pipeline, o *batch.Orchestrator, jobs jobstore.Store, settings repository.SettingsRepository) *Handler {
	return &Handler{Pipeline: p, Batch: o, Jobs: jobs, Settings: settings}
}

// Health reports that the process is up. It deliberately does not probe
// Redis/Postgres/the OCR or LLM backends — those are exercised on the
// first real job and surface as a job FAILED, not a 503 here.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// jobRequest is the JSON body for POST /jobs: one chapter translation.
type jobRequest struct {
	ChapterURL string `json:"chapter_url"`
	TargetLang string `json:"target_lang"`
	SourceLang string `json:"source_lang,omitempty"`
	Backend    int    `json:"backend"` // 1=llm, 2=mt
	SeriesName string `json:"series_name,omitempty"`
	SeriesID   string `json:"series_id,omitempty"`
}

type jobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// SubmitJob enqueues a single chapter translation and returns its job ID
// immediately; the caller polls GET /jobs/:id for status, per the spec's
// "throughput-oriented, backgrounded" pipeline.
func (h *Handler) SubmitJob(c echo.Context) error {
	var req jobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ChapterURL == "" || req.TargetLang == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "chapter_url and target_lang are required"})
	}
	backend := model.Backend(req.Backend)
	if backend != model.BackendLLM && backend != model.BackendMT {
		backend = model.BackendLLM
	}

	job, err := h.Pipeline.Submit(c.Request().Context(), pipeline.Input{
		ChapterURL: req.ChapterURL,
		TargetLang: req.TargetLang,
		SourceLang: req.SourceLang,
		Backend:    backend,
		SeriesName: req.SeriesName,
		SeriesID:   req.SeriesID,
	})
	if err != nil {
		logger.Error("http submit job failed", "module", "http", "action", "submit_job", "resource", req.ChapterURL, "result", "error", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to submit job"})
	}

	return c.JSON(http.StatusAccepted, jobResponse{ID: job.ID, Status: string(job.Status), Progress: job.Progress})
}

// GetJob reports a job's current status, progress, and (if failed) error.
func (h *Handler) GetJob(c echo.Context) error {
	id := c.Param("id")
	job, err := h.Jobs.Get(c.Request().Context(), id)
	if err != nil {
		if kind, ok := pipelineerr.Of(err); ok && kind == pipelineerr.KindNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up job"})
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	return c.JSON(http.StatusOK, jobResponse{ID: job.ID, Status: string(job.Status), Progress: job.Progress, Error: job.Error})
}

// batchRequest is the JSON body for POST /batches.
type batchRequest struct {
	SampleURL  string `json:"sample_url"`
	Range      string `json:"range"`
	TargetLang string `json:"target_lang"`
	SourceLang string `json:"source_lang,omitempty"`
	Backend    int    `json:"backend"`
	SeriesName string `json:"series_name,omitempty"`
	SeriesID   string `json:"series_id,omitempty"`
}

// SubmitBatch validates and expands the range expression synchronously
// (so a malformed range fails fast with a 400) then runs the batch in the
// background: per §4.9 a batch can take many chapter-timeouts to finish
// and must never block the request goroutine.
func (h *Handler) SubmitBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SampleURL == "" || req.Range == "" || req.TargetLang == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sample_url, range, and target_lang are required"})
	}

	numbers, err := batch.ParseRange(req.Range)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	backend := model.Backend(req.Backend)
	if backend != model.BackendLLM && backend != model.BackendMT {
		backend = model.BackendLLM
	}

	breq := batch.Request{
		SampleURL:  req.SampleURL,
		Range:      req.Range,
		TargetLang: req.TargetLang,
		SourceLang: req.SourceLang,
		Backend:    backend,
		SeriesName: req.SeriesName,
		SeriesID:   req.SeriesID,
	}

	go func() {
		result, err := h.Batch.Run(context.Background(), breq)
		if err != nil {
			logger.Error("http batch run failed", "module", "http", "action", "submit_batch", "resource", req.SampleURL, "result", "error", "error", err)
			return
		}
		logger.Info("http batch finished", "module", "http", "action", "submit_batch", "resource", req.SampleURL, "result", "ok", "completed", result.Completed, "failed", result.Failed, "total", result.Total)
	}()

	return c.JSON(http.StatusAccepted, map[string]any{"total": len(numbers)})
}

// settingRequest is the JSON body for PUT /settings/:key.
type settingRequest struct {
	Value string `json:"value"`
}

// GetSetting reports one operator-tunable knob (e.g. a rate-limit
// override) by key. These live alongside jobs/glossary in the sqlite
// store, per model.Setting, so an operator can retune the running
// pipeline without a restart.
func (h *Handler) GetSetting(c echo.Context) error {
	key := c.Param("key")
	s, err := h.Settings.Get(c.Request().Context(), key)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up setting"})
	}
	if s == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "setting not found"})
	}
	return c.JSON(http.StatusOK, s)
}

// PutSetting creates or overwrites one operator-tunable knob.
func (h *Handler) PutSetting(c echo.Context) error {
	key := c.Param("key")
	var req settingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.Settings.Set(c.Request().Context(), key, req.Value); err != nil {
		logger.Error("http put setting failed", "module", "http", "action", "put_setting", "resource", key, "result", "error", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store setting"})
	}
	return c.JSON(http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
