// Package ocr detects text regions on a chapter page. A single Engine
// is expensive to initialize (model weights, a remote session) and is
// shared across every page of every chapter through a lazily
// initialized Reader.
package ocr

import (
	"context"

	"github.com/toonrelay/pipeline/internal/model"
)

// minConfidence discards any detected block the engine is not
// reasonably sure about.
const minConfidence = 0.5

// Engine is one text-detection backend: a local model, a bundled
// Tesseract/PaddleOCR process, or a cloud vision API. Detect returns
// raw blocks in whatever coordinate convention the engine natively
// uses; the Reader normalizes them.
type Engine interface {
	Name() string
	Detect(ctx context.Context, pageBytes []byte) ([]model.TextBlock, error)
}
