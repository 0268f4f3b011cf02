package ner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/ner"
)

func TestExtract_FindsMultiWordName(t *testing.T) {
	candidates := ner.Extract([]string{"Kim Dokja stepped through the door."})
	require.NotEmpty(t, candidates)
	require.Equal(t, "Kim Dokja", candidates[0].Name)
}

func TestExtract_DropsSentenceStarters(t *testing.T) {
	candidates := ner.Extract([]string{"The sword glowed. He smiled."})
	for _, c := range candidates {
		require.NotEqual(t, "The", c.Name)
		require.NotEqual(t, "He", c.Name)
	}
}

func TestExtract_DeduplicatesAcrossTexts(t *testing.T) {
	candidates := ner.Extract([]string{"Yoo Joonghyuk arrived.", "Yoo Joonghyuk left."})
	count := 0
	for _, c := range candidates {
		if c.Name == "Yoo Joonghyuk" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestExtract_MultiWordOutranksSingleWordPrefix(t *testing.T) {
	candidates := ner.Extract([]string{"Kim Dokja is here."})
	for _, c := range candidates {
		require.NotEqual(t, "Kim", c.Name, "single-word prefix should not survive alongside the full run")
	}
}
