package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// challengeMarkers are strings that show up in a bot-protection
// challenge's DOM (Cloudflare, Anubis-style proof-of-work pages, generic
// "checking your browser" interstitials). If any are still present after
// waiting out the challenge window, the site is still blocking us.
var challengeMarkers = []string{
	"checking your browser",
	"id=\"anubis_challenge\"",
	"cf-browser-verification",
	"just a moment",
}

// BrowserAdapter drives a real browser engine for sites behind a
// JavaScript challenge: colly/goquery alone only ever see the challenge
// page, never the reader DOM. Each ImageURLs call starts its own browser
// and browser context and tears them down before returning, so one
// BrowserAdapter can serve concurrent chapter fetches.
type BrowserAdapter struct {
	cfg           SelectorConfig
	challengeWait time.Duration

	mu      sync.Mutex
	solving map[string]chan struct{} // host -> closed when that host's in-flight call returns
}

// NewBrowserAdapter builds a bot-protection-aware adapter around the given
// selector recipe. challengeWait bounds how long it waits for a JS
// challenge to clear before giving up.
func NewBrowserAdapter(cfg SelectorConfig, challengeWait time.Duration) *BrowserAdapter {
	if challengeWait <= 0 {
		challengeWait = 10 * time.Second
	}
	return &BrowserAdapter{cfg: cfg, challengeWait: challengeWait, solving: make(map[string]chan struct{})}
}

func (a *BrowserAdapter) Name() string { return a.cfg.Name }

// ImageURLs loads chapterURL in a headless browser, waits up to
// challengeWait for any JS challenge to clear, snapshots the resulting
// DOM, and extracts image URLs the same way SiteAdapter does. A call that
// finds another call for the same host in flight waits for it to return
// before running its own snapshot; results are not shared between calls,
// so each call still waits out the full challenge window.
func (a *BrowserAdapter) ImageURLs(ctx context.Context, chapterURL string) ([]string, error) {
	host := hostOf(chapterURL)
	a.mu.Lock()
	if ch, ok := a.solving[host]; ok {
		a.mu.Unlock()
		logger.Info("browser adapter waiting for in-flight challenge solve", "module", "scraper", "action", "fetch", "resource", host, "result", "wait")
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		a.mu.Unlock()
	}

	a.mu.Lock()
	done := make(chan struct{})
	a.solving[host] = done
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.solving, host)
		close(done)
		a.mu.Unlock()
	}()

	return a.snapshot(ctx, chapterURL)
}

func (a *BrowserAdapter) snapshot(ctx context.Context, chapterURL string) ([]string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, a.challengeWait+10*time.Second)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(chapterURL),
		chromedp.Sleep(a.challengeWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "scraper.BrowserAdapter.ImageURLs", err)
	}

	if stillChallenged(html) {
		return nil, pipelineerr.Wrap(pipelineerr.KindBlocked, "scraper.BrowserAdapter.ImageURLs",
			fmt.Sprintf("challenge markers still present after %s", a.challengeWait))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "scraper.BrowserAdapter.ImageURLs", err)
	}

	container := (&SiteAdapter{cfg: a.cfg}).findContainer(doc)
	if container == nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindNotFound, "scraper.BrowserAdapter.ImageURLs", "reader container not found in browser snapshot")
	}

	adapterForExtract := &SiteAdapter{cfg: a.cfg}
	var urls []string
	container.Find(a.cfg.ImageSelector).Each(func(_ int, sel *goquery.Selection) {
		src := adapterForExtract.extractURL(sel)
		if src == "" {
			return
		}
		if a.cfg.ExcludeFilename != nil && a.cfg.ExcludeFilename.MatchString(src) {
			return
		}
		urls = append(urls, src)
	})
	return urls, nil
}

func stillChallenged(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
