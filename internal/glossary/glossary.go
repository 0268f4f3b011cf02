// Package glossary keeps each series' term -> translation dictionary
// consistent across chapters: proper nouns and recurring phrases get
// looked up before translation and recorded after it, so the same term
// renders the same way every time.
package glossary

import (
	"context"
	"time"

	"github.com/toonrelay/pipeline/internal/model"
)

// Store persists one glossary dictionary per (series, source lang, target
// lang) and the entries within it.
type Store interface {
	// GetOrCreateDictionary returns the dictionary for the given series
	// and language pair, creating one with the given capacity if none
	// exists yet.
	GetOrCreateDictionary(ctx context.Context, seriesID, sourceLang, targetLang string, capacity int) (*model.Dictionary, error)

	// Entries returns every entry in a dictionary, in no particular
	// order; Apply sorts them longest Original first itself.
	Entries(ctx context.Context, dictionaryID string) ([]model.GlossaryEntry, error)

	// Upsert records a term -> translation mapping, creating the entry or
	// bumping its usage and recency if it already exists. kind is the
	// caller's claim about whether the term is a proper noun
	// (model.ProperNounAuto for an unreviewed NER guess,
	// ConfirmedYes/ConfirmedNo for a human or explicit glossary import);
	// per §4.3 it only overwrites an existing entry's stored state when
	// kind is not Auto, so a later auto-discovery pass never clobbers a
	// confirmed decision.
	Upsert(ctx context.Context, dictionaryID, original, translation string, kind model.ProperNounState, at time.Time) error

	// ConfirmProperNoun records a human (or explicit glossary import)
	// decision about whether a term is a proper noun, overriding the
	// NER pass's guess from then on.
	ConfirmProperNoun(ctx context.Context, dictionaryID, original string, isProperNoun bool) error

	// Cleanup evicts entries below minKeepUsage once a dictionary is over
	// capacity, oldest-and-least-used first, and reports how many were
	// removed.
	Cleanup(ctx context.Context, dictionaryID string, minKeepUsage int) (int, error)
}
