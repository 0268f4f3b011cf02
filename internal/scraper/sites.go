package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/Noooste/azuretls-client"

	"github.com/toonrelay/pipeline/internal/network"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// lazyGridSelectors covers the common "one big scrollable div full of
// lazy-loaded <img>" reader layout used by most webtoon/long-strip sites.
var lazyGridSelectors = SelectorConfig{
	Name:               "lazy-grid",
	ContainerSelectors: []string{"#readerarea", ".reading-content", ".viewer-wrapper"},
	ImageSelector:      "img",
	AttrPriority:       []string{"data-src", "data-lazy-src", "data-original", "src"},
	ExcludeFilename:    DefaultSelectorConfig.ExcludeFilename,
}

// pagedSelectors covers sites that render one <img> per page inside a
// numbered page container rather than a single scrollable strip.
var pagedSelectors = SelectorConfig{
	Name:               "paged-reader",
	ContainerSelectors: []string{"#chapter_body", ".page-break", "#readerarea"},
	ImageSelector:      "img.wp-manga-chapter-img, img",
	AttrPriority:       []string{"data-src", "src"},
	ExcludeFilename:    DefaultSelectorConfig.ExcludeFilename,
}

// BuildRegistry assembles the scraper's host-to-adapter Registry: a plain
// SiteAdapter for sites with no bot protection, an azuretls-backed
// SiteAdapter for sites that fingerprint TLS/HTTP2 but have no JS
// challenge, and a BrowserAdapter for sites that do. Host lists are
// operator-configured (passed in by cmd/pipelineserver from config/env),
// so this takes the lists rather than hardcoding real hostnames.
func BuildRegistry(plainHosts, fingerprintedHosts, challengedHosts []string, factory *network.ClientFactory, challengeWait time.Duration) *Registry {
	defaultAdapter := NewSiteAdapter(DefaultSelectorConfig, NewDefaultCollector)
	registry := NewRegistry(defaultAdapter)

	lazyGridAdapter := NewSiteAdapter(lazyGridSelectors, NewDefaultCollector)
	registry.Register(lazyGridAdapter, plainHosts...)

	if len(fingerprintedHosts) > 0 {
		session := factory.NewAzureSession(30 * time.Second)
		fingerprintedAdapter := newAzureSiteAdapter(pagedSelectors, session)
		registry.Register(fingerprintedAdapter, fingerprintedHosts...)
	}

	if len(challengedHosts) > 0 {
		browserAdapter := NewBrowserAdapter(lazyGridSelectors, challengeWait)
		registry.Register(browserAdapter, challengedHosts...)
	}

	return registry
}

// azureSiteAdapter is a SiteAdapter variant for hosts that inspect TLS/HTTP2
// fingerprints rather than running a JS challenge: it fetches the chapter
// page through an azuretls.Session (Chrome-shaped fingerprint) instead of
// colly's plain net/http transport, then parses the result with the same
// goquery selector logic as SiteAdapter.
type azureSiteAdapter struct {
	cfg     SelectorConfig
	session *azuretls.Session
}

func newAzureSiteAdapter(cfg SelectorConfig, session *azuretls.Session) *azureSiteAdapter {
	return &azureSiteAdapter{cfg: cfg, session: session}
}

func (a *azureSiteAdapter) Name() string { return a.cfg.Name + "-fingerprinted" }

func (a *azureSiteAdapter) ImageURLs(_ context.Context, chapterURL string) ([]string, error) {
	resp, err := a.session.Get(chapterURL)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "scraper.azureSiteAdapter.ImageURLs", err)
	}
	if resp.StatusCode != 200 {
		return nil, pipelineerr.Wrap(pipelineerr.KindUpstream, "scraper.azureSiteAdapter.ImageURLs", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "scraper.azureSiteAdapter.ImageURLs", err)
	}

	plain := &SiteAdapter{cfg: a.cfg}
	container := plain.findContainer(doc)
	if container == nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindNotFound, "scraper.azureSiteAdapter.ImageURLs", "reader container not found")
	}

	var urls []string
	container.Find(a.cfg.ImageSelector).Each(func(_ int, sel *goquery.Selection) {
		src := plain.extractURL(sel)
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
