package translator

import (
	"context"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// NetworkMTBackend is the last tier of the free cascade: a network
// machine-translation client. No dedicated MT client library exists
// anywhere in the example pack, so this tier is built on the same
// OpenAI-compatible client already wired for the LLM backend
// (CompatibleProvider pointed at a self-hosted MT gateway such as
// LibreTranslate's OpenAI-shim or a local Argos endpoint) instead of a
// bespoke protocol, reusing its prompt/parse plumbing.
type NetworkMTBackend struct {
	provider Provider
}

// NewNetworkMTBackend wraps provider as the network tier. A nil
// provider makes the tier permanently unavailable, matching the
// cascade contract for an unconfigured leaf.
func NewNetworkMTBackend(provider Provider) *NetworkMTBackend {
	return &NetworkMTBackend{provider: provider}
}

func (b *NetworkMTBackend) Name() string { return "network_mt_client" }

func (b *NetworkMTBackend) TranslateBatch(ctx context.Context, texts []string, srcLang, targetLang string) ([]string, error) {
	if b.provider == nil {
		return nil, ErrUnavailable
	}

	system := systemPrompt(srcLang, targetLang, nil, nil)
	user := userPrompt(texts)

	reply, err := b.provider.Complete(ctx, system, user)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindUpstream, "translator.NetworkMTBackend", err)
	}

	parsed, ok := parseTranslations(reply)
	if !ok {
		return nil, pipelineerr.Wrap(pipelineerr.KindInvariant, "translator.NetworkMTBackend", "could not parse reply")
	}
	return normalizeLength(parsed, len(texts)), nil
}
