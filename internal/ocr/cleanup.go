package ocr

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	readability "codeberg.org/readeck/go-readability/v2"
)

var (
	textSanitizer  = bluemonday.StrictPolicy()
	cleanupBaseURL = &url.URL{Scheme: "https", Host: "toonrelay.invalid", Path: "/ocr"}
)

// cleanText strips stray markup and boilerplate-like noise from one raw
// OCR block before NER and translation ever see it. Vision OCR engines
// occasionally echo back HTML entities or site-chrome text baked into a
// panel (watermarks, UI labels) alongside the actual dialogue; running
// the block through the readability parser as a one-paragraph document
// discards anything that doesn't read as primary content, and the
// strict sanitizer policy then strips whatever markup survives.
func cleanText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	doc := "<html><body><p>" + raw + "</p></body></html>"
	article, err := readability.NewParser().Parse(strings.NewReader(doc), cleanupBaseURL)
	if err != nil {
		return textSanitizer.Sanitize(raw)
	}

	var buf bytes.Buffer
	if err := article.RenderHTML(&buf); err != nil {
		return textSanitizer.Sanitize(raw)
	}

	cleaned := strings.TrimSpace(textSanitizer.Sanitize(buf.String()))
	if cleaned == "" {
		// A single speech-bubble line can look like boilerplate to a
		// readability heuristic tuned for articles; don't drop it.
		return textSanitizer.Sanitize(raw)
	}
	return cleaned
}
