package translator

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// OfflinePhraseBackend is the second tier of the free cascade: a
// dictionary of fixed phrase->phrase substitutions loaded once from a
// JSON file, keyed "<srcLang>:<targetLang>". No phrase-based statistical
// MT toolkit (e.g. Moses) has a usable Go binding anywhere in the
// example pack, so this tier implements the "offline phrase-based"
// contract as literal longest-phrase substitution rather than a
// trained model; it still only ever serves language pairs whose table
// was actually loaded, reporting ErrUnavailable for every other pair
// so the cascade moves on to the network tier.
type OfflinePhraseBackend struct {
	mu     sync.RWMutex
	tables map[string]map[string]string
}

// NewOfflinePhraseBackend loads phrase tables from path. path may be
// empty, in which case the backend is permanently unavailable. The
// file format is {"ko:en": {"phrase": "translation", ...}, ...}.
func NewOfflinePhraseBackend(path string) (*OfflinePhraseBackend, error) {
	b := &OfflinePhraseBackend{tables: map[string]map[string]string{}}
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, pipelineerr.New(pipelineerr.KindStorage, "translator.OfflinePhraseBackend", err)
	}

	var tables map[string]map[string]string
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindInvariant, "translator.OfflinePhraseBackend", err)
	}
	b.tables = tables
	return b, nil
}

func (b *OfflinePhraseBackend) Name() string { return "offline_phrase_table" }

func (b *OfflinePhraseBackend) TranslateBatch(_ context.Context, texts []string, srcLang, targetLang string) ([]string, error) {
	b.mu.RLock()
	table := b.tables[srcLang+":"+targetLang]
	b.mu.RUnlock()

	if len(table) == 0 {
		return nil, ErrUnavailable
	}

	phrases := make([]string, 0, len(table))
	for phrase := range table {
		phrases = append(phrases, phrase)
	}
	sort.Slice(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })

	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = substitutePhrases(text, phrases, table)
	}
	return out, nil
}

// substitutePhrases replaces every occurrence of the longest matching
// known phrase, left to right, leaving unmatched spans untouched.
func substitutePhrases(text string, phrases []string, table map[string]string) string {
	var b strings.Builder
	lower := strings.ToLower(text)

	for i := 0; i < len(text); {
		matched := false
		for _, phrase := range phrases {
			pl := strings.ToLower(phrase)
			if strings.HasPrefix(lower[i:], pl) {
				b.WriteString(table[phrase])
				i += len(pl)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(text[i])
			i++
		}
	}
	return b.String()
}
