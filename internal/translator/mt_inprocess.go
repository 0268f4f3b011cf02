package translator

import "context"

// InProcessBackend is the top tier of the free-translation cascade: a
// model loaded into the process itself (e.g. a CTranslate2/NMT
// checkpoint reachable through cgo bindings). No such binding ships in
// this module, so InProcessBackend always reports ErrUnavailable and
// the cascade falls through to the next tier. The type exists so a
// deployment that does embed a model only needs to satisfy Backend and
// pass an instance to NewMTTranslator ahead of the other tiers.
type InProcessBackend struct{}

func NewInProcessBackend() *InProcessBackend { return &InProcessBackend{} }

func (b *InProcessBackend) Name() string { return "in_process_model" }

func (b *InProcessBackend) TranslateBatch(_ context.Context, _ []string, _, _ string) ([]string, error) {
	return nil, ErrUnavailable
}
