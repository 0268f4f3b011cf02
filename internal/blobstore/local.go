package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// LocalFileManager writes chapters under a root directory using the
// <root>/<sanitized_series>/<src>_to_<tgt>/chapter_<NNNN>/ layout.
type LocalFileManager struct {
	root string
}

// NewLocalFileManager returns a FileManager rooted at the given directory,
// creating it if necessary.
func NewLocalFileManager(root string) (*LocalFileManager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.NewLocalFileManager", err)
	}
	return &LocalFileManager{root: root}, nil
}

func (m *LocalFileManager) chapterDir(series string, chapterNumber int, srcLang, targetLang string) string {
	return filepath.Join(
		m.root,
		SanitizeFilename(series),
		fmt.Sprintf("%s_to_%s", srcLang, targetLang),
		fmt.Sprintf("chapter_%04d", chapterNumber),
	)
}

// Save writes every page, the optional cleaned originals, and metadata.json
// under the chapter's directory. The directory is created fresh; any
// partially written state from a prior failed attempt is removed first so
// Save is safe to retry.
func (m *LocalFileManager) Save(ctx context.Context, series string, chapterNumber int, pages []PageImage, metadata Metadata, srcLang, targetLang string, cleanedPages []PageImage) (string, error) {
	dir := m.chapterDir(series, chapterNumber, srcLang, targetLang)

	if err := os.RemoveAll(dir); err != nil {
		return "", pipelineerr.New(pipelineerr.KindStorage, "blobstore.Save", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pipelineerr.New(pipelineerr.KindStorage, "blobstore.Save", err)
	}

	for _, page := range pages {
		if ctx.Err() != nil {
			_ = os.RemoveAll(dir)
			return "", pipelineerr.New(pipelineerr.KindTimeout, "blobstore.Save", ctx.Err())
		}
		path := filepath.Join(dir, fmt.Sprintf("page_%03d.%s", page.Index+1, page.Ext))
		if err := os.WriteFile(path, page.Bytes, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return "", pipelineerr.New(pipelineerr.KindStorage, "blobstore.Save", err)
		}
	}

	if len(cleanedPages) > 0 {
		cleanedDir := filepath.Join(dir, "cleaned")
		if err := os.MkdirAll(cleanedDir, 0o755); err != nil {
			_ = os.RemoveAll(dir)
			return "", pipelineerr.New(pipelineerr.KindStorage, "blobstore.Save", err)
		}
		for _, page := range cleanedPages {
			path := filepath.Join(cleanedDir, fmt.Sprintf("page_%03d.%s", page.Index+1, page.Ext))
			if err := os.WriteFile(path, page.Bytes, 0o644); err != nil {
				_ = os.RemoveAll(dir)
				return "", pipelineerr.New(pipelineerr.KindStorage, "blobstore.Save", err)
			}
		}
	}

	raw, err := marshalMetadata(metadata)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", pipelineerr.New(pipelineerr.KindInvariant, "blobstore.Save", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), raw, 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", pipelineerr.New(pipelineerr.KindStorage, "blobstore.Save", err)
	}

	return dir, nil
}

// Remove deletes a chapter directory previously returned by Save.
func (m *LocalFileManager) Remove(ctx context.Context, storagePath string) error {
	if storagePath == "" {
		return nil
	}
	if err := os.RemoveAll(storagePath); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "blobstore.Remove", err)
	}
	return nil
}
