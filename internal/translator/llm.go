package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// LLMTranslator drives a Provider through the chunked, glossary-seeded
// translate flow described for the high-quality backend.
type LLMTranslator struct {
	provider    Provider
	rateLimiter *RateLimiter
	breaker     *breaker
}

// NewLLMTranslator wraps provider with rate limiting and circuit breaking.
func NewLLMTranslator(provider Provider, qps int) *LLMTranslator {
	return &LLMTranslator{
		provider:    provider,
		rateLimiter: NewRateLimiter(qps),
		breaker:     newBreaker(5, 60*time.Second),
	}
}

func (t *LLMTranslator) Translate(ctx context.Context, texts []string, srcLang, targetLang string, opts Options) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	chunks := chunkTexts(texts)
	out := make([]string, 0, len(texts))
	var previousContext []string

	for i, chunk := range chunks {
		translated, err := t.translateChunk(ctx, chunk, srcLang, targetLang, opts, previousContext)
		if err != nil {
			logger.Warn("llm translate chunk failed, falling back to originals",
				"module", "translator", "action", "translate_chunk", "resource", "llm", "result", "error",
				"chunk_index", i, "error", err)
			translated = chunk
		}
		out = append(out, translated...)
		previousContext = firstN(translated, carryoverLines)
	}

	return normalizeLength(out, len(texts)), nil
}

func (t *LLMTranslator) translateChunk(ctx context.Context, texts []string, srcLang, targetLang string, opts Options, previousContext []string) ([]string, error) {
	if !t.breaker.allow() {
		return nil, pipelineerr.Wrap(pipelineerr.KindUpstream, "translator.LLMTranslator", "circuit open")
	}

	if err := t.rateLimiter.Wait(ctx); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindTimeout, "translator.LLMTranslator", err)
	}

	system := systemPrompt(srcLang, targetLang, opts.Glossary, previousContext)
	user := userPrompt(texts)

	reply, err := t.provider.Complete(ctx, system, user)
	if err != nil {
		t.breaker.recordFailure()
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "translator.LLMTranslator", err)
	}

	parsed, ok := parseTranslations(reply)
	if !ok {
		t.breaker.recordFailure()
		return nil, pipelineerr.Wrap(pipelineerr.KindInvariant, "translator.LLMTranslator", fmt.Sprintf("could not parse reply of length %d", len(reply)))
	}

	t.breaker.recordSuccess()
	return normalizeLength(parsed, len(texts)), nil
}
