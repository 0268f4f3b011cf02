package imageproc

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// faceCache builds and memoizes font.Face instances at whatever point
// sizes the binary-search font-fit asks for. Parsing the outline once and
// rasterizing faces per size is far cheaper than reparsing goregular's TTF
// bytes on every call, and a chapter's pages commonly converge on the same
// handful of sizes.
type faceCache struct {
	collection *opentype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

func newFaceCache() *faceCache {
	return &faceCache{faces: make(map[float64]font.Face)}
}

// face returns a font.Face at the given point size, parsing the embedded
// goregular outline on first use. goregular ships as part of
// golang.org/x/image (already required for the scraper's WEBP decoding)
// and is the only scalable font available anywhere in the dependency
// closure, so it is the one the renderer draws translated text with.
func (c *faceCache) face(size float64) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.faces[size]; ok {
		return f, nil
	}

	if c.collection == nil {
		parsed, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.KindInvariant, "imageproc.faceCache.face", err)
		}
		c.collection = parsed
	}

	f, err := opentype.NewFace(c.collection, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindInvariant, "imageproc.faceCache.face", err)
	}

	c.faces[size] = f
	return f, nil
}
