// Package blobstore persists finished chapter page images and metadata to
// disk in the layout the publisher and any downstream reader expect.
package blobstore

import (
	"context"
	"encoding/json"
	"time"
)

// PageImage is one page's final bytes, ready to write.
type PageImage struct {
	Index int
	Bytes []byte
	Ext   string // "webp", "jpg", or "png", without the dot
}

// Metadata describes one saved chapter, written alongside its pages as
// metadata.json.
type Metadata struct {
	Series        string    `json:"series"`
	ChapterNumber int       `json:"chapter_number"`
	SourceLang    string    `json:"source_lang"`
	TargetLang    string    `json:"target_lang"`
	PageCount     int       `json:"page_count"`
	SavedAt       time.Time `json:"saved_at"`
}

// FileManager saves a translated chapter's pages (and, optionally, the
// cleaned originals) to durable storage and returns the path it wrote to.
type FileManager interface {
	Save(ctx context.Context, series string, chapterNumber int, pages []PageImage, metadata Metadata, srcLang, targetLang string, cleanedPages []PageImage) (string, error)
	// Remove deletes a previously saved chapter directory. Used to roll
	// back a blob write when the catalog transaction that should follow
	// it fails.
	Remove(ctx context.Context, storagePath string) error
}

func marshalMetadata(m Metadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
