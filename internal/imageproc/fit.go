package imageproc

import (
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// fitResult is the outcome of a binary-search font-fit: the largest size
// that wraps text within the target box, the wrapped lines at that size,
// and the face to draw them with.
type fitResult struct {
	size  int
	lines []string
	face  font.Face
}

// fitText binary-searches font sizes in [minSize, maxSize] for the largest
// size at which text, word-wrapped to boxWidthPx, wraps to a line count
// whose total height fits within boxHeightPx. If even minSize overflows
// the box, minSize is still returned (the renderer lets a block overflow
// slightly rather than drop the translation outright).
func (p *Processor) fitText(text string, boxWidthPx, boxHeightPx int) (fitResult, error) {
	minSize, maxSize := p.opts.MinFontSize, p.opts.MaxFontSize
	if minSize > maxSize {
		minSize, maxSize = maxSize, minSize
	}

	width := fixed.I(boxWidthPx)
	height := fixed.I(boxHeightPx)

	best := fitResult{size: minSize}
	bestSet := false

	lo, hi := minSize, maxSize
	for lo <= hi {
		mid := (lo + hi) / 2
		face, err := p.faces.face(float64(mid))
		if err != nil {
			return fitResult{}, err
		}

		lines := wrapText(face, text, width)
		if blockHeight(face, len(lines)) <= height {
			best = fitResult{size: mid, lines: lines, face: face}
			bestSet = true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if !bestSet {
		face, err := p.faces.face(float64(minSize))
		if err != nil {
			return fitResult{}, err
		}
		best = fitResult{size: minSize, lines: wrapText(face, text, width), face: face}
	}
	return best, nil
}
