// Package model holds the domain types shared across every pipeline stage:
// fingerprints, pages, OCR blocks, glossary entries, jobs, and the catalog
// triple the publisher commits.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Backend identifies which translation engine produced a result.
type Backend int

const (
	BackendLLM Backend = 1
	BackendMT  Backend = 2
)

func (b Backend) String() string {
	switch b {
	case BackendLLM:
		return "llm"
	case BackendMT:
		return "mt"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend maps a config/CLI string onto a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "llm":
		return BackendLLM, nil
	case "mt":
		return BackendMT, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

// Fingerprint identifies a unique unit of work: one chapter, translated to
// one target language, by one backend. Every cache key, lock key, and blob
// path is derived from it.
type Fingerprint struct {
	ChapterURL string
	TargetLang string
	Backend    Backend
}

// Key returns a stable, filesystem- and Redis-key-safe digest of the
// fingerprint. Two fingerprints with the same fields always produce the
// same key, regardless of process or machine.
func (f Fingerprint) Key() string {
	h := sha256.New()
	h.Write([]byte(f.ChapterURL))
	h.Write([]byte{0})
	h.Write([]byte(f.TargetLang))
	h.Write([]byte{0})
	h.Write([]byte(f.Backend.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s->%s[%s]", f.ChapterURL, f.TargetLang, f.Backend)
}
