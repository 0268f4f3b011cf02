// Package scraper fetches a chapter's page images from its hosting site.
// It picks a site-specific Adapter by URL host, falls back to a generic
// adapter for unknown hosts, and downloads every discovered image in
// parallel, returning them in reading order.
package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// minSuccessRatio is the fraction of discovered image URLs that must
// download successfully before the chapter is considered fetched at all.
const minSuccessRatio = 0.5

// Page is one fetched page: ordered index, raw bytes, and the format the
// bytes were sniffed as.
type Page struct {
	Index  int
	Bytes  []byte
	Format string // "jpeg", "png", or "webp"
}

// Adapter knows how to find a chapter's reader images on one site (or
// family of sites). Implementations declare their own selector priority
// and filtering; Scraper only calls Fetch.
type Adapter interface {
	// Name identifies the adapter for logging.
	Name() string
	// ImageURLs returns every candidate reader image URL for chapterURL,
	// in reading order, after applying the adapter's container selector
	// and filename/filter heuristics.
	ImageURLs(ctx context.Context, chapterURL string) ([]string, error)
}

// Scraper resolves an Adapter per chapter URL and downloads its images.
type Scraper struct {
	registry    *Registry
	downloader  *Downloader
	challengeWait time.Duration
}

// New builds a Scraper around a site Adapter registry and the HTTP/browser
// machinery used to actually pull image bytes.
func New(registry *Registry, downloader *Downloader, challengeWait time.Duration) *Scraper {
	if challengeWait <= 0 {
		challengeWait = 10 * time.Second
	}
	return &Scraper{registry: registry, downloader: downloader, challengeWait: challengeWait}
}

// Fetch resolves chapterURL's host to an Adapter, collects its image URLs,
// and downloads them in parallel with chapterURL as Referer. It fails with
// pipelineerr.KindNotFound when the adapter finds no reader container,
// KindBlocked when a bot-protection challenge never clears, and
// KindUpstream wrapping a "PartialFetch" when fewer than minSuccessRatio of
// discovered URLs downloaded.
func (s *Scraper) Fetch(ctx context.Context, chapterURL string) ([]Page, error) {
	adapter := s.registry.For(chapterURL)

	logger.Info("scraper fetching chapter", "module", "scraper", "action", "fetch", "resource", adapter.Name(), "result", "start", "url", chapterURL)

	urls, err := adapter.ImageURLs(ctx, chapterURL)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, pipelineerr.Wrap(pipelineerr.KindNotFound, "scraper.Fetch", "reader container empty after primary and fallback selectors")
	}

	pages, failed := s.downloader.DownloadAll(ctx, urls, chapterURL)
	successRatio := float64(len(pages)) / float64(len(urls))
	if successRatio < minSuccessRatio {
		logger.Warn("scraper partial fetch", "module", "scraper", "action", "fetch", "resource", adapter.Name(), "result", "partial",
			"url", chapterURL, "discovered", len(urls), "downloaded", len(pages), "failed", failed)
		return nil, pipelineerr.Wrap(pipelineerr.KindUpstream, "scraper.Fetch", "PartialFetch: fewer than half of discovered images downloaded")
	}

	logger.Info("scraper fetch complete", "module", "scraper", "action", "fetch", "resource", adapter.Name(), "result", "ok",
		"url", chapterURL, "pages", len(pages))
	return pages, nil
}

// hostOf returns the lowercase host of rawURL, or "" if it doesn't parse.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// newHTTPClient is the shared default for adapters that just need a plain
// client (no TLS fingerprinting, no browser).
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
