package imageproc

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// wrapText greedily packs words onto lines no wider than maxWidth (in
// fixed.Int26_6 units, i.e. font.MeasureString's scale), falling back to a
// hard character break for any single word that alone exceeds maxWidth
// (long URLs, CJK runs with no spaces, onomatopoeia with no word
// boundary).
func wrapText(face font.Face, text string, maxWidth fixed.Int26_6) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var current string

	pushWord := func(word string) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(face, candidate) <= maxWidth || current == "" {
			current = candidate
			return
		}
		lines = append(lines, current)
		current = word
	}

	for _, w := range words {
		if measure(face, w) > maxWidth {
			for _, part := range hardBreak(face, w, maxWidth) {
				pushWord(part)
			}
			continue
		}
		pushWord(w)
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// hardBreak splits a single overlong word into chunks that each fit within
// maxWidth, rune by rune.
func hardBreak(face font.Face, word string, maxWidth fixed.Int26_6) []string {
	var chunks []string
	var chunk strings.Builder
	for _, r := range word {
		candidate := chunk.String() + string(r)
		if measure(face, candidate) > maxWidth && chunk.Len() > 0 {
			chunks = append(chunks, chunk.String())
			chunk.Reset()
		}
		chunk.WriteRune(r)
	}
	if chunk.Len() > 0 {
		chunks = append(chunks, chunk.String())
	}
	if len(chunks) == 0 {
		return []string{word}
	}
	return chunks
}

func measure(face font.Face, s string) fixed.Int26_6 {
	if s == "" || utf8.RuneCountInString(s) == 0 {
		return 0
	}
	return font.MeasureString(face, s)
}

// blockHeight returns the total vertical span lineCount lines occupy at
// the given face's metrics, using the face's recommended line height.
func blockHeight(face font.Face, lineCount int) fixed.Int26_6 {
	if lineCount == 0 {
		return 0
	}
	metrics := face.Metrics()
	return metrics.Height * fixed.Int26_6(lineCount)
}
