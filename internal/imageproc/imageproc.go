// Package imageproc removes a page's source text and paints the
// translation back in: clean fills every detected text region with the
// color sampled around it, render fits and draws the translated lines
// into each region, and Process chains the two. Both operations work on
// fresh images and are safe to run concurrently across pages.
package imageproc

import (
	"bytes"
	"image"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// Options configures the render step's font-fit search and output
// encoding.
type Options struct {
	MinFontSize int // default 10
	MaxFontSize int // default 40
	Quality     int // JPEG quality, default 90
	PaddingPx   int // mask padding around each block, default 5
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{MinFontSize: 10, MaxFontSize: 40, Quality: 90, PaddingPx: 5}
}

// Processor cleans and renders pages using a shared Options configuration
// and a cached font face builder (glyph outlines are expensive to parse
// repeatedly across every page of every chapter).
type Processor struct {
	opts  Options
	faces *faceCache
}

// NewProcessor builds a Processor around opts.
func NewProcessor(opts Options) *Processor {
	if opts.MinFontSize <= 0 {
		opts.MinFontSize = 10
	}
	if opts.MaxFontSize <= 0 {
		opts.MaxFontSize = 40
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}
	if opts.PaddingPx <= 0 {
		opts.PaddingPx = 5
	}
	return &Processor{opts: opts, faces: newFaceCache()}
}

// Result holds both encoded rasters a finished page produces: the
// translated render that becomes the publishable page, and the
// text-free clean pass kept alongside it so an editor can re-render from
// scratch without re-running inpainting.
type Result struct {
	Final   []byte
	Cleaned []byte
	Format  string
}

// Process cleans pageBytes of its source text and renders translations
// into a copy of that cleaned raster, returning both the final and
// cleaned encoded bytes plus the format they were encoded as (always
// "jpeg"; see encode). blocks and translations must be the same length
// and index-aligned. The cleaned bytes are always the text-free pass —
// never the rendered translation — so the `cleaned/` blob directory
// keeps its intended purpose of letting an editor redraw from a blank
// bubble.
func (p *Processor) Process(pageBytes []byte, blocks []model.TextBlock, translations []string) (Result, error) {
	img, _, err := decodeImage(pageBytes)
	if err != nil {
		return Result{}, err
	}

	cleaned, err := p.clean(img, blocks)
	if err != nil {
		return Result{}, err
	}

	cleanedBytes, format, err := encode(cleaned, p.opts.Quality)
	if err != nil {
		return Result{}, err
	}

	rendered := cloneRGBA(cleaned)
	if err := p.render(rendered, blocks, translations); err != nil {
		return Result{}, err
	}

	finalBytes, _, err := encode(rendered, p.opts.Quality)
	if err != nil {
		return Result{}, err
	}

	return Result{Final: finalBytes, Cleaned: cleanedBytes, Format: format}, nil
}

// cloneRGBA copies img so render can draw into it without disturbing the
// cleaned raster that was already encoded.
func cloneRGBA(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

// decodeImage decodes raw bytes into an image.Image, classifying a decode
// failure as a pipeline invariant violation: the scraper should never hand
// the processor bytes outside the three supported formats.
func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", pipelineerr.New(pipelineerr.KindInvariant, "imageproc.decodeImage", err)
	}
	return img, format, nil
}
