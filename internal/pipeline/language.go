package pipeline

import (
	"net/url"
	"regexp"
	"strings"
)

const defaultSourceLang = "en"

var langPathSegment = regexp.MustCompile(`^[a-z]{2}$`)

// countryTLDLang maps a handful of country-coded TLDs to the language the
// chapter is almost certainly scraped in, per §4.8's ".com.tr implies
// Turkish" example.
var countryTLDLang = map[string]string{
	".com.tr": "tr",
	".com.br": "pt",
	".co.kr":  "ko",
	".co.jp":  "ja",
}

// detectSourceLang infers a chapter's source language from its URL when
// the caller doesn't supply one: first from a two-letter path segment
// (/en/, /tr/, ...), then from a known country-coded host suffix,
// defaulting to English.
func detectSourceLang(chapterURL string) string {
	u, err := url.Parse(chapterURL)
	if err != nil {
		return defaultSourceLang
	}

	for _, seg := range strings.Split(u.Path, "/") {
		if langPathSegment.MatchString(seg) {
			return seg
		}
	}

	host := strings.ToLower(u.Host)
	for suffix, lang := range countryTLDLang {
		if strings.HasSuffix(host, suffix) {
			return lang
		}
	}

	return defaultSourceLang
}

var nonWord = regexp.MustCompile(`[^\w]+`)

// seriesKey derives a stable glossary grouping key when the caller hasn't
// yet published a chapter (and so has no catalog Series.ID to pass in):
// the normalized series name if supplied, otherwise the chapter URL's
// host, so at minimum every chapter scraped from the same site shares one
// dictionary rather than starting a fresh one per chapter.
func seriesKey(in Input) string {
	if in.SeriesID != "" {
		return in.SeriesID
	}
	if in.SeriesName != "" {
		return normalizeSeriesName(in.SeriesName)
	}
	if u, err := url.Parse(in.ChapterURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return "default"
}

// normalizeSeriesName lowercases, strips non-word characters, and
// collapses whitespace — the same normalization the Publisher uses to
// match series titles (§4.10), so a glossary started during translation
// lines up with the series the Publisher later resolves it to.
func normalizeSeriesName(title string) string {
	lower := strings.ToLower(title)
	collapsed := nonWord.ReplaceAllString(lower, " ")
	return strings.Join(strings.Fields(collapsed), " ")
}
