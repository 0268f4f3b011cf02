package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// ScratchStore persists a chapter's processed page bytes under a
// fingerprint-keyed scratch directory, separate from FileManager's
// series-shaped publish layout. The result cache stores only a
// ChapterResult's metadata (refs, blocks, dimensions) in Redis; the page
// bytes themselves live here so a cache hit can still serve full images
// and so Publisher can copy scratch pages into the catalog layout without
// re-running the pipeline.
type ScratchStore struct {
	root string
}

// NewScratchStore returns a ScratchStore rooted at dir, creating it if
// necessary.
func NewScratchStore(dir string) (*ScratchStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.NewScratchStore", err)
	}
	return &ScratchStore{root: dir}, nil
}

func (s *ScratchStore) dir(fingerprintKey string) string {
	return filepath.Join(s.root, fingerprintKey)
}

// Put writes pages and cleanedPages under the fingerprint's scratch
// directory and returns the refs (relative paths) to store in
// model.RenderedPage.ImageRef.
func (s *ScratchStore) Put(ctx context.Context, fingerprintKey string, pages, cleanedPages []PageImage) (refs, cleanedRefs []string, err error) {
	dir := s.dir(fingerprintKey)
	if err := os.RemoveAll(dir); err != nil {
		return nil, nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Put", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Put", err)
	}

	for _, p := range pages {
		if ctx.Err() != nil {
			return nil, nil, pipelineerr.New(pipelineerr.KindTimeout, "blobstore.ScratchStore.Put", ctx.Err())
		}
		name := fmt.Sprintf("page_%03d.%s", p.Index+1, p.Ext)
		if err := os.WriteFile(filepath.Join(dir, name), p.Bytes, 0o644); err != nil {
			return nil, nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Put", err)
		}
		refs = append(refs, filepath.Join(fingerprintKey, name))
	}

	if len(cleanedPages) > 0 {
		cleanedDir := filepath.Join(dir, "cleaned")
		if err := os.MkdirAll(cleanedDir, 0o755); err != nil {
			return nil, nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Put", err)
		}
		for _, p := range cleanedPages {
			name := fmt.Sprintf("page_%03d.%s", p.Index+1, p.Ext)
			if err := os.WriteFile(filepath.Join(cleanedDir, name), p.Bytes, 0o644); err != nil {
				return nil, nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Put", err)
			}
			cleanedRefs = append(cleanedRefs, filepath.Join(fingerprintKey, "cleaned", name))
		}
	}
	return refs, cleanedRefs, nil
}

// Get reads back a single page's bytes by the ref Put returned.
func (s *ScratchStore) Get(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ref))
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Get", err)
	}
	return data, nil
}

// Remove deletes a fingerprint's entire scratch directory, used when a
// cached result is invalidated or superseded.
func (s *ScratchStore) Remove(fingerprintKey string) error {
	if err := os.RemoveAll(s.dir(fingerprintKey)); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "blobstore.ScratchStore.Remove", err)
	}
	return nil
}
