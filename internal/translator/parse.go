package translator

import (
	"strings"

	"github.com/tidwall/gjson"
)

// parseTranslations extracts a string array from an LLM reply. It accepts
// a bare JSON array, a JSON object whose first array-valued field holds the
// translations (preferring "translations" or "texts"), a reply wrapped in
// markdown code fences, or — as a last resort — a plain newline-delimited
// list. A JSON path is taken only when gjson.Valid accepts the text, so a
// reply that is not well-formed JSON (trailing commentary, single quotes,
// truncation) falls through to the newline-delimited parse.
func parseTranslations(reply string) ([]string, bool) {
	trimmed := strings.TrimSpace(reply)

	if texts, ok := tryParseJSON(trimmed); ok {
		return texts, true
	}

	unfenced := stripCodeFences(trimmed)
	if unfenced != trimmed {
		if texts, ok := tryParseJSON(unfenced); ok {
			return texts, true
		}
	}

	lines := splitNonEmptyLines(unfenced)
	if len(lines) > 0 {
		return lines, true
	}
	return nil, false
}

func tryParseJSON(s string) ([]string, bool) {
	if !gjson.Valid(s) {
		return nil, false
	}
	result := gjson.Parse(s)

	if result.IsArray() {
		return decodeStringArray(result), true
	}
	if !result.IsObject() {
		return nil, false
	}

	for _, key := range []string{"translations", "texts"} {
		if field := result.Get(key); field.IsArray() {
			return decodeStringArray(field), true
		}
	}

	var arr []string
	var found bool
	result.ForEach(func(_, value gjson.Result) bool {
		if value.IsArray() {
			arr = decodeStringArray(value)
			found = true
			return false
		}
		return true
	})
	return arr, found
}

func decodeStringArray(result gjson.Result) []string {
	arr := make([]string, 0, len(result.Array()))
	for _, item := range result.Array() {
		arr = append(arr, item.String())
	}
	return arr
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "json" || firstLine == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
