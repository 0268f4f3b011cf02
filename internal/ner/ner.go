// Package ner extracts candidate proper nouns from translated text so the
// glossary can be seeded and refreshed without a human pre-building it.
// No linguistic model is wired in; every source feeding this pipeline is
// English-rendered text by the time NER runs, so the capitalization
// heuristic below is the primary path, not just a fallback.
package ner

import (
	"regexp"
	"sort"
	"strings"
)

// Candidate is one extracted name with the confidence the heuristic that
// found it assigned.
type Candidate struct {
	Name       string
	Confidence float64
}

const minConfidence = 0.3

var (
	titleCaseWord  = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	runCapitalized = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
)

// stopwords are capitalized words that are never names: sentence-starters
// and common English words that happen to get capitalized at the start of
// a line.
var stopwords = map[string]bool{
	"The": true, "A": true, "An": true, "This": true, "That": true,
	"These": true, "Those": true, "He": true, "She": true, "It": true,
	"They": true, "We": true, "You": true, "I": true, "But": true,
	"And": true, "Or": true, "So": true, "If": true, "When": true,
	"What": true, "Where": true, "Why": true, "How": true, "Who": true,
}

// Extract returns every unique candidate proper noun found across texts,
// ordered by descending confidence then name. Overlapping matches within a
// single text keep only the higher-confidence (longer) span.
func Extract(texts []string) []Candidate {
	seen := make(map[string]float64)

	for _, text := range texts {
		for _, run := range nonOverlappingRuns(text) {
			name := strings.TrimSpace(run)
			if name == "" || isStopword(name) {
				continue
			}
			confidence := confidenceFor(name)
			if confidence < minConfidence {
				continue
			}
			if existing, ok := seen[name]; !ok || confidence > existing {
				seen[name] = confidence
			}
		}
	}

	out := make([]Candidate, 0, len(seen))
	for name, confidence := range seen {
		out = append(out, Candidate{Name: name, Confidence: confidence})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// nonOverlappingRuns finds runs of consecutive capitalized words (multi-word
// names beat their single-word prefixes since the regex is greedy).
func nonOverlappingRuns(text string) []string {
	return runCapitalized.FindAllString(text, -1)
}

func isStopword(name string) bool {
	first := strings.Fields(name)[0]
	return stopwords[first]
}

// confidenceFor scores multi-word runs higher than single capitalized
// words, since a lone capitalized word is more likely to be a
// sentence-initial common noun than a name.
func confidenceFor(name string) float64 {
	words := strings.Fields(name)
	if len(words) > 1 {
		return 0.8
	}
	if len(name) >= 4 {
		return 0.4
	}
	return 0.3
}

// AlwaysCapitalized reports whether s looks like a single title-cased word,
// used by callers that want a looser single-word check outside Extract's
// run-based grouping.
func AlwaysCapitalized(s string) bool {
	return titleCaseWord.MatchString(s)
}
