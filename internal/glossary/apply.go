package glossary

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/toonrelay/pipeline/internal/model"
)

// Apply substitutes every glossary hit in text with its recorded
// translation, matching longest terms first and only at whole-token
// boundaries so "Kim" doesn't clobber "Kimura". Matching is case
// insensitive; the replacement always uses the entry's stored casing.
func Apply(text string, entries []model.GlossaryEntry) string {
	if len(entries) == 0 {
		return text
	}

	ordered := make([]model.GlossaryEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool {
		return len(ordered[i].Original) > len(ordered[j].Original)
	})

	lowerText := strings.ToLower(text)
	var out strings.Builder
	out.Grow(len(text))

	i := 0
	for i < len(text) {
		matched := false
		for _, e := range ordered {
			term := strings.ToLower(e.Original)
			if term == "" {
				continue
			}
			end := i + len(term)
			if end > len(lowerText) || lowerText[i:end] != term {
				continue
			}
			if !isTokenBoundary(lowerText, i, end) {
				continue
			}
			out.WriteString(e.Translation)
			i = end
			matched = true
			break
		}
		if matched {
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			size = 1
		}
		out.WriteString(text[i : i+size])
		i += size
	}
	return out.String()
}

func isTokenBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
