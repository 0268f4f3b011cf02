// Package translator turns a flat list of OCR'd strings into translations,
// one-to-one, via either a quality LLM backend or a free MT cascade. Both
// backends satisfy the same Translate contract so the chapter pipeline
// never has to branch on which one is active.
package translator

import (
	"context"
)

// Options carries the per-call knobs a Translate implementation may use.
type Options struct {
	// Glossary lists term -> translation pairs that MUST be honored
	// verbatim whenever the original term appears. Order matters for the
	// LLM backend's prompt (longest terms are listed first upstream).
	Glossary []GlossaryTerm
}

// GlossaryTerm is one entry of the mandatory glossary block a translate
// call is seeded with.
type GlossaryTerm struct {
	Original    string
	Translation string
}

// Translator translates a flat list of source strings into the target
// language, preserving order and count: len(out) == len(in) always holds,
// even when the underlying backend misbehaves.
type Translator interface {
	Translate(ctx context.Context, texts []string, srcLang, targetLang string, opts Options) ([]string, error)
}

// normalizeLength pads with empty strings or truncates so the
// one-to-one invariant holds regardless of what a backend returned.
func normalizeLength(got []string, want int) []string {
	if len(got) == want {
		return got
	}
	out := make([]string, want)
	copy(out, got)
	return out
}
