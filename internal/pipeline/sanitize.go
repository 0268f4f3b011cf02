package pipeline

import "github.com/microcosm-cc/bluemonday"

// translationSanitizer strips any HTML/script markup an LLM backend might
// echo back (whether injected by adversarial source text or a model
// formatting quirk) before a translated line reaches the glossary store or
// the image renderer. Neither consumer interprets HTML, so anything this
// policy removes was never meaningful content.
var translationSanitizer = bluemonday.StrictPolicy()

func sanitizeTranslation(s string) string {
	return translationSanitizer.Sanitize(s)
}
