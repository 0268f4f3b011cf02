package batch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// urlTemplate pairs a name (for logging) with a regexp that captures the
// numeric segment a chapter number lives in.
type urlTemplate struct {
	name string
	re   *regexp.Regexp
}

// templates is checked in order; the first one that matches the sample URL
// wins. The list and order follow §4.9's recognized patterns.
var templates = []urlTemplate{
	{"episode-", regexp.MustCompile(`(?i)(episode-)(\d+)`)},
	{"chapter-", regexp.MustCompile(`(?i)(chapter-)(\d+)`)},
	{"bolum-", regexp.MustCompile(`(?i)(bolum-)(\d+)`)},
	{"ep-", regexp.MustCompile(`(?i)(ep-)(\d+)`)},
	{"ch-", regexp.MustCompile(`(?i)(ch-)(\d+)`)},
	{"episode_no=", regexp.MustCompile(`(?i)(episode_no=)(\d+)`)},
	{"chapter_no=", regexp.MustCompile(`(?i)(chapter_no=)(\d+)`)},
	{"/N/", regexp.MustCompile(`(/)(\d+)(/)`)},
}

// BuildURL substitutes chapter number n into sampleURL's numeric segment,
// recognizing the first matching template. If none match, it appends
// "/chapter-N" per §4.9's fallback.
func BuildURL(sampleURL string, n int) string {
	for _, t := range templates {
		loc := t.re.FindStringSubmatchIndex(sampleURL)
		if loc == nil {
			continue
		}
		// loc[4:6] is the digit group's [start,end) span.
		return sampleURL[:loc[4]] + strconv.Itoa(n) + sampleURL[loc[5]:]
	}
	return strings.TrimRight(sampleURL, "/") + fmt.Sprintf("/chapter-%d", n)
}

// ChapterNumberFromURL extracts a chapter number from a URL using the same
// templates BuildURL substitutes into, for the Publisher's "recover the
// chapter number from the source URL" step (§4.10). Defaults to 1 when no
// template matches or the captured text isn't a valid integer.
func ChapterNumberFromURL(url string) int {
	for _, t := range templates {
		m := t.re.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil {
			return n
		}
	}
	return 1
}
