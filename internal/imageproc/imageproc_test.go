package imageproc_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toonrelay/pipeline/internal/imageproc"
	"github.com/toonrelay/pipeline/internal/model"
)

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestProcessor_Process_NoBlocksReturnsCleanedPage(t *testing.T) {
	p := imageproc.NewProcessor(imageproc.DefaultOptions())
	src := solidJPEG(t, 200, 200, color.White)

	res, err := p.Process(src, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "jpeg", res.Format)
	require.NotEmpty(t, res.Final)
	require.NotEmpty(t, res.Cleaned)
}

func TestProcessor_Process_DrawsTranslationIntoBlock(t *testing.T) {
	p := imageproc.NewProcessor(imageproc.DefaultOptions())
	src := solidJPEG(t, 400, 300, color.White)

	blocks := []model.TextBlock{
		{PageIndex: 0, Box: model.BBox{X0: 20, Y0: 20, X1: 300, Y1: 120}, Text: "hello", Confidence: 0.9},
	}
	translations := []string{"Hello, world! This is a translated line of dialogue."}

	res, err := p.Process(src, blocks, translations)
	require.NoError(t, err)
	require.Equal(t, "jpeg", res.Format)

	decoded, _, err := image.Decode(bytes.NewReader(res.Final))
	require.NoError(t, err)
	require.Equal(t, 400, decoded.Bounds().Dx())
	require.Equal(t, 300, decoded.Bounds().Dy())

	cleanedDecoded, _, err := image.Decode(bytes.NewReader(res.Cleaned))
	require.NoError(t, err)
	require.Equal(t, 400, cleanedDecoded.Bounds().Dx())
	require.Equal(t, 300, cleanedDecoded.Bounds().Dy())
	require.NotEqual(t, res.Final, res.Cleaned, "cleaned page must not be the rendered translation")
}

func TestProcessor_Process_EmptyTranslationSkipsBlock(t *testing.T) {
	p := imageproc.NewProcessor(imageproc.DefaultOptions())
	src := solidJPEG(t, 100, 100, color.White)

	blocks := []model.TextBlock{{PageIndex: 0, Box: model.BBox{X0: 0, Y0: 0, X1: 50, Y1: 50}}}
	_, err := p.Process(src, blocks, []string{""})
	require.NoError(t, err)
}

func TestProcessor_Process_MismatchedLengthsErrors(t *testing.T) {
	p := imageproc.NewProcessor(imageproc.DefaultOptions())
	src := solidJPEG(t, 100, 100, color.White)

	blocks := []model.TextBlock{{PageIndex: 0, Box: model.BBox{X0: 0, Y0: 0, X1: 50, Y1: 50}}}
	_, err := p.Process(src, blocks, nil)
	require.Error(t, err)
}

func TestProcessor_Process_InvalidBytesErrors(t *testing.T) {
	p := imageproc.NewProcessor(imageproc.DefaultOptions())
	_, err := p.Process([]byte("not an image"), nil, nil)
	require.Error(t, err)
}
