package imageproc

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// outlineOffsets are the four diagonal directions the renderer strokes a
// white outline in behind each glyph run, giving legible black-on-white
// text over arbitrary background art without a real stroke-path renderer.
var outlineOffsets = [4]image.Point{
	{X: -1, Y: -1}, {X: -1, Y: 1}, {X: 1, Y: -1}, {X: 1, Y: 1},
}

// render draws translations into img at the position of their matching
// block, binary-searching each block's font size independently so one
// oversized block doesn't shrink every other block on the page.
func (p *Processor) render(img *image.RGBA, blocks []model.TextBlock, translations []string) error {
	if len(blocks) != len(translations) {
		return pipelineerr.Wrap(pipelineerr.KindInvariant, "imageproc.render", "blocks and translations length mismatch")
	}

	for i, b := range blocks {
		text := translations[i]
		if text == "" {
			continue
		}
		if err := p.renderBlock(img, b, text); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) renderBlock(img *image.RGBA, b model.TextBlock, text string) error {
	fit, err := p.fitText(text, b.Box.Width(), b.Box.Height())
	if err != nil {
		return err
	}
	if len(fit.lines) == 0 {
		return nil
	}

	metrics := fit.face.Metrics()
	lineHeight := metrics.Height
	totalHeight := lineHeight * fixed.Int26_6(len(fit.lines))

	startY := fixed.I(b.Box.Y0) + (fixed.I(b.Box.Height())-totalHeight)/2 + metrics.Ascent

	for i, line := range fit.lines {
		lineWidth := measure(fit.face, line)
		startX := fixed.I(b.Box.X0) + (fixed.I(b.Box.Width())-lineWidth)/2
		dot := fixed.Point26_6{X: startX, Y: startY + lineHeight*fixed.Int26_6(i)}
		drawOutlinedLine(img, fit.face, line, dot)
	}
	return nil
}

// drawOutlinedLine draws line at dot four times offset by one pixel in
// each diagonal direction in white, then once more centered in black,
// producing a legible outlined glyph run without a dedicated stroke
// renderer.
func drawOutlinedLine(img *image.RGBA, face font.Face, line string, dot fixed.Point26_6) {
	for _, off := range outlineOffsets {
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.Point26_6{X: dot.X + fixed.I(off.X), Y: dot.Y + fixed.I(off.Y)},
		}
		drawer.DrawString(line)
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  dot,
	}
	drawer.DrawString(line)
}
