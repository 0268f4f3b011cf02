package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/scraper"
)

type stubAdapter struct {
	name string
	urls []string
	err  error
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) ImageURLs(context.Context, string) ([]string, error) {
	return s.urls, s.err
}

func TestRegistry_FallsBackForUnregisteredHost(t *testing.T) {
	fallback := &stubAdapter{name: "fallback"}
	registry := scraper.NewRegistry(fallback)
	registry.Register(&stubAdapter{name: "specific"}, "known.example")

	assert.Equal(t, "fallback", registry.For("https://unknown.example/c/1").Name())
	assert.Equal(t, "specific", registry.For("https://known.example/c/1").Name())
	assert.Equal(t, "specific", registry.For("https://sub.known.example/c/1").Name(), "subdomains match by suffix")
}

func TestScraper_Fetch_NotFoundWhenNoImageURLs(t *testing.T) {
	registry := scraper.NewRegistry(&stubAdapter{name: "empty"})
	s := scraper.New(registry, scraper.NewDownloader(http.DefaultClient), time.Second)

	_, err := s.Fetch(context.Background(), "https://example.com/c/1")
	require.Error(t, err)
}

func TestScraper_Fetch_DownloadsAllImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegMagicBytes())
	}))
	defer srv.Close()

	adapter := &stubAdapter{name: "three-pages", urls: []string{srv.URL + "/1", srv.URL + "/2", srv.URL + "/3"}}
	registry := scraper.NewRegistry(adapter)
	s := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)

	pages, err := s.Fetch(context.Background(), "https://example.com/c/1")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
	}
}

func TestScraper_Fetch_PartialFetchBelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/4" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(jpegMagicBytes())
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/1", srv.URL + "/2", srv.URL + "/3", srv.URL + "/4"}
	adapter := &stubAdapter{name: "mostly-failing", urls: urls}
	registry := scraper.NewRegistry(adapter)
	s := scraper.New(registry, scraper.NewDownloader(srv.Client()), time.Second)

	_, err := s.Fetch(context.Background(), "https://example.com/c/1")
	require.Error(t, err)
}

// jpegMagicBytes returns a short JPEG signature. image.DecodeConfig rejects
// it as truncated, so it exercises sniffFormat's fallback, which reports jpeg.
func jpegMagicBytes() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
}
