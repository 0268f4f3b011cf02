package imageproc

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// encode produces the final page bytes. The pack's only WEBP support
// (golang.org/x/image/webp) is decode-only — there is no pure-Go WEBP
// encoder among the teacher's or the pack's dependencies — so encode
// always emits JPEG at the configured quality, which every reader site and
// the catalog's blob storage already accept. DESIGN.md's C6 entry records
// this as a deliberate stdlib fallback rather than a missed dependency.
func encode(img image.Image, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", pipelineerr.New(pipelineerr.KindInvariant, "imageproc.encode", err)
	}
	return buf.Bytes(), "jpeg", nil
}
