package translator

import (
	"context"

	"github.com/toonrelay/pipeline/internal/logger"
)

// Backend is one tier of the free-translation cascade. Implementations
// report ErrUnavailable when the tier has nothing to offer (model not
// loaded, dictionary not present, endpoint not configured) so the
// cascade can fall through to the next one without treating that as a
// translate failure.
type Backend interface {
	Name() string
	TranslateBatch(ctx context.Context, texts []string, srcLang, targetLang string) ([]string, error)
}

// MTTranslator tries each configured Backend in order with the whole batch
// and returns the first backend's successful result. When no backend can
// serve the batch, it returns the original texts rather than failing the
// whole chapter.
type MTTranslator struct {
	backends []Backend
}

// NewMTTranslator builds the cascade in preference order: an in-process
// model, then an offline phrase table, then a network client. Callers
// construct only the tiers they have something to back; omit a tier by
// not including it.
func NewMTTranslator(backends ...Backend) *MTTranslator {
	return &MTTranslator{backends: backends}
}

func (t *MTTranslator) Translate(ctx context.Context, texts []string, srcLang, targetLang string, _ Options) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := append([]string(nil), texts...)
	remaining := out

	for _, backend := range t.backends {
		translated, err := backend.TranslateBatch(ctx, remaining, srcLang, targetLang)
		if err != nil {
			if IsUnavailable(err) {
				continue
			}
			logger.Warn("mt backend failed, trying next tier",
				"module", "translator", "action", "translate_batch", "resource", backend.Name(), "result", "error",
				"error", err)
			continue
		}
		return normalizeLength(translated, len(texts)), nil
	}

	// No backend could serve this batch; the pipeline continues with
	// source text rather than blocking the chapter.
	logger.Warn("mt cascade exhausted, passing through original text",
		"module", "translator", "action", "translate_batch", "resource", "mt_cascade", "result", "fallback",
		"line_count", len(texts))
	return out, nil
}
