package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	name        string
	unavailable bool
	translate   func([]string) []string
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) TranslateBatch(_ context.Context, texts []string, _, _ string) ([]string, error) {
	if s.unavailable {
		return nil, ErrUnavailable
	}
	return s.translate(texts), nil
}

func TestMTTranslator_FallsThroughUnavailableTiers(t *testing.T) {
	first := &stubBackend{name: "first", unavailable: true}
	second := &stubBackend{name: "second", translate: func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = "translated:" + s
		}
		return out
	}}

	mt := NewMTTranslator(first, second)
	out, err := mt.Translate(context.Background(), []string{"hello", "world"}, "ko", "en", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"translated:hello", "translated:world"}, out)
}

func TestMTTranslator_NoBackendsPassesThroughOriginal(t *testing.T) {
	mt := NewMTTranslator(NewInProcessBackend())
	out, err := mt.Translate(context.Background(), []string{"original text"}, "ko", "en", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"original text"}, out)
}

func TestMTTranslator_EmptyInput(t *testing.T) {
	mt := NewMTTranslator(NewInProcessBackend())
	out, err := mt.Translate(context.Background(), nil, "ko", "en", Options{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestOfflinePhraseBackend_UnconfiguredIsUnavailable(t *testing.T) {
	b, err := NewOfflinePhraseBackend("")
	require.NoError(t, err)
	_, err = b.TranslateBatch(context.Background(), []string{"hi"}, "ko", "en")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInProcessBackend_AlwaysUnavailable(t *testing.T) {
	b := NewInProcessBackend()
	_, err := b.TranslateBatch(context.Background(), []string{"hi"}, "ko", "en")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNetworkMTBackend_NilProviderIsUnavailable(t *testing.T) {
	b := NewNetworkMTBackend(nil)
	_, err := b.TranslateBatch(context.Background(), []string{"hi"}, "ko", "en")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubstitutePhrases_LongestFirst(t *testing.T) {
	table := map[string]string{"hello": "HI", "hello world": "GREETING"}
	phrases := []string{"hello world", "hello"}
	out := substitutePhrases("hello world!", phrases, table)
	assert.Equal(t, "GREETING!", out)
}
