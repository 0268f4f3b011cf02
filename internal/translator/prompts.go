package translator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/sjson"
)

// systemPrompt returns the system message for a translate request. When
// glossary is non-empty, a mandatory glossary block is appended so the
// model reuses established terms instead of re-deriving them per chunk.
func systemPrompt(srcLang, targetLang string, glossary []GlossaryTerm, previousContext []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a professional %s-to-%s translator for serialized comics.

CRITICAL: Reply with a JSON array of translations ONLY, one string per input line, in the same order. Any response that is not a bare JSON array is a FAILURE.

Rules:
- Preserve line breaks as separate array elements; do not merge or split lines
- Keep tone and register consistent with a comic's dialogue
- NEVER add commentary, notes, or markdown code fences around the array
- NEVER translate onomatopoeia into a transliteration unless it has an established localization
`, srcLang, targetLang)

	if len(glossary) > 0 {
		b.WriteString("\nGLOSSARY (mandatory — use these exact translations whenever the original term appears):\n")
		for _, term := range glossary {
			fmt.Fprintf(&b, "- %s -> %s\n", term.Original, term.Translation)
		}
	}

	if len(previousContext) > 0 {
		b.WriteString("\nPREVIOUS CONTEXT (the first already-translated lines of the previous chunk, for tone/name continuity only — do not re-emit them):\n")
		for _, line := range previousContext {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	return b.String()
}

// userPrompt renders texts as a JSON array body for the request, building
// it incrementally with sjson rather than marshaling a struct since the
// array is the entire payload and its elements are already plain strings.
func userPrompt(texts []string) string {
	raw := "[]"
	for i, t := range texts {
		var err error
		raw, err = sjson.Set(raw, strconv.Itoa(i), t)
		if err != nil {
			return "[]"
		}
	}
	return raw
}
