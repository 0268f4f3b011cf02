package ocr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText_StripsMarkup(t *testing.T) {
	got := cleanText(`Stop right there<script>alert(1)</script>!`)
	require.NotContains(t, got, "<script>")
	require.Contains(t, got, "Stop right there")
}

func TestCleanText_KeepsShortDialogue(t *testing.T) {
	got := cleanText("Huh?")
	require.Equal(t, "Huh?", got)
}

func TestCleanText_EmptyInput(t *testing.T) {
	require.Equal(t, "", cleanText(""))
	require.Equal(t, "", cleanText("   "))
}
