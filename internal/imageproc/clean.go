package imageproc

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/toonrelay/pipeline/internal/model"
)

// clean erases every block's source text from an RGBA copy of img and
// returns that copy, so callers can draw translations into it afterward without
// mutating the caller's decoded image. Each block's padded box is filled
// with the average color sampled from its immediate border, which is
// enough to erase flat speech-bubble interiors and screentone panels alike
// without a full inpainting model.
func (p *Processor) clean(img image.Image, blocks []model.TextBlock) (*image.RGBA, error) {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	for _, b := range blocks {
		box := paddedBox(b.Box, p.opts.PaddingPx, bounds)
		fill := borderAverage(out, box, bounds)
		draw.Draw(out, box, &image.Uniform{C: fill}, image.Point{}, draw.Src)
	}
	return out, nil
}

// paddedBox expands box by padPx on every side, clamped to bounds.
func paddedBox(box model.BBox, padPx int, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(box.X0-padPx, box.Y0-padPx, box.X1+padPx, box.Y1+padPx)
	return r.Intersect(bounds)
}

// borderAverage samples a thin ring of pixels just outside box (or, if box
// already touches the image edge, its own edge pixels) and returns their
// average color, used as the flat fill for erased text.
func borderAverage(img *image.RGBA, box, bounds image.Rectangle) color.Color {
	const ringWidth = 4
	ring := image.Rect(box.Min.X-ringWidth, box.Min.Y-ringWidth, box.Max.X+ringWidth, box.Max.Y+ringWidth).Intersect(bounds)
	if ring.Empty() {
		return color.White
	}

	var rSum, gSum, bSum, n uint64
	for y := ring.Min.Y; y < ring.Max.Y; y++ {
		for x := ring.Min.X; x < ring.Max.X; x++ {
			if (image.Point{X: x, Y: y}).In(box) {
				continue // skip the text region itself, only sample its border
			}
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			n++
		}
	}
	if n == 0 {
		return color.White
	}
	return color.RGBA{
		R: uint8(rSum / n),
		G: uint8(gSum / n),
		B: uint8(bSum / n),
		A: 255,
	}
}
