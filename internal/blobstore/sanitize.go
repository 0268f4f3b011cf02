package blobstore

import "strings"

const maxSanitizedLength = 200

var unsafeFilenameChars = map[rune]bool{
	'<': true, '>': true, ':': true, '"': true,
	'/': true, '\\': true, '|': true, '?': true, '*': true,
}

// SanitizeFilename replaces filesystem-unsafe characters with "_", trims
// leading/trailing dots and spaces, and truncates to the maximum length the
// on-disk layout allows for any single path segment.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unsafeFilenameChars[r] {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), " .")
	if runes := []rune(out); len(runes) > maxSanitizedLength {
		out = string(runes[:maxSanitizedLength])
	}
	if out == "" {
		out = "untitled"
	}
	return out
}
