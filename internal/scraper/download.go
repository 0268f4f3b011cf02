package scraper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/image/webp"

	"github.com/toonrelay/pipeline/internal/logger"
)

// maxConcurrentDownloads bounds how many images a single chapter fetch
// downloads in parallel.
const maxConcurrentDownloads = 8

// Downloader pulls page image bytes over HTTP, retrying transient
// failures per-image with small backoff and setting the chapter URL as
// Referer, per the scraper contract.
type Downloader struct {
	client *http.Client
}

// NewDownloader builds a Downloader around an http.Client (typically one
// produced by network.ClientFactory).
func NewDownloader(client *http.Client) *Downloader {
	return &Downloader{client: client}
}

// DownloadAll fetches every url in parallel, bounded by
// maxConcurrentDownloads, and returns the successfully fetched pages in
// their original order plus how many failed outright after retrying.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string, referer string) ([]Page, int) {
	type result struct {
		index int
		page  Page
		err   error
	}

	sem := make(chan struct{}, maxConcurrentDownloads)
	results := make(chan result, len(urls))
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(index int, imgURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := d.downloadWithRetry(ctx, imgURL, referer)
			if err != nil {
				results <- result{index: index, err: err}
				return
			}
			format := sniffFormat(data)
			results <- result{index: index, page: Page{Index: index, Bytes: data, Format: format}}
		}(i, u)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make([]Page, 0, len(urls))
	failed := 0
	for r := range results {
		if r.err != nil {
			logger.Warn("scraper image download failed", "module", "scraper", "action", "download", "resource", "image", "result", "failed", "url", urls[r.index], "error", r.err)
			failed++
			continue
		}
		pages = append(pages, r.page)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	return pages, failed
}

func (d *Downloader) downloadWithRetry(ctx context.Context, imgURL, referer string) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			got, err := d.downloadOnce(ctx, imgURL, referer)
			if err != nil {
				return err
			}
			data = got
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	return data, err
}

func (d *Downloader) downloadOnce(ctx context.Context, imgURL, referer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", referer)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, imgURL)
	}
	return io.ReadAll(resp.Body)
}

// sniffFormat detects whether data is a JPEG, PNG, or WEBP image, falling
// back to "jpeg" if detection fails (most reader sites serve JPEG).
func sniffFormat(data []byte) string {
	if _, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "webp"
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format
	}
	return "jpeg"
}
