package ocr

import (
	"context"
	"sync"

	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// Reader is the singleton OCR front door the pipeline calls. The
// underlying Engine is constructed once, on first use, via factory —
// not at Reader construction time — since a real engine may need to
// load model weights or open a client session that's wasted if OCR is
// never actually invoked (e.g. tests that stub the whole pipeline).
type Reader struct {
	factory func() (Engine, error)

	once   sync.Once
	engine Engine
	initErr error
}

// NewReader builds a Reader around factory, which constructs the
// concrete Engine on first Detect call.
func NewReader(factory func() (Engine, error)) *Reader {
	return &Reader{factory: factory}
}

func (r *Reader) init() (Engine, error) {
	r.once.Do(func() {
		logger.Info("initializing ocr engine", "module", "ocr", "action", "init")
		r.engine, r.initErr = r.factory()
	})
	return r.engine, r.initErr
}

// Detect runs OCR over one page's encoded image bytes, discards blocks
// below minConfidence, and normalizes each bounding box so X0 <= X1 and
// Y0 <= Y1. A page with no text above the confidence floor returns
// an empty, non-nil slice: the pipeline treats that as "leave the page
// unchanged", not an error.
func (r *Reader) Detect(ctx context.Context, pageBytes []byte) ([]model.TextBlock, error) {
	engine, err := r.init()
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "ocr.Reader", err)
	}

	blocks, err := engine.Detect(ctx, pageBytes)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "ocr.Reader", err)
	}

	out := make([]model.TextBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Confidence < minConfidence {
			continue
		}
		b.Box = normalizeBBox(b.Box)
		b.Text = cleanText(b.Text)
		if b.Text == "" {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// normalizeBBox forces a box into axis-aligned, top-left-origin form,
// correcting for an engine that hands back its corner points in the
// opposite order this codebase expects.
func normalizeBBox(b model.BBox) model.BBox {
	if b.X1 < b.X0 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y1 < b.Y0 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}
