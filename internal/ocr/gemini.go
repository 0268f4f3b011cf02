package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
	"google.golang.org/api/option"

	"github.com/toonrelay/pipeline/internal/model"
)

// detectPrompt asks the vision model to behave like a text-region
// detector rather than a captioner: every bubble, every box, no
// paraphrasing.
const detectPrompt = `You are a text-region detector for manga/webtoon pages, not a
captioner. Find every piece of text on this image (speech bubbles, sound
effects, signage) and return ONLY a JSON array, no prose, no code fences.
Each element: {"text": string, "x": int, "y": int, "w": int, "h": int,
"confidence": number between 0 and 1}. x/y/w/h are pixel coordinates of
the tightest bounding box around that text, top-left origin. Return []
if the page has no text.`

// geminiFormat maps a sniffed image format to the MIME type genai expects.
var geminiFormat = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// GeminiEngine is an Engine backed by a Gemini vision model: it treats
// OCR as a structured image-understanding call rather than a dedicated
// detector, the way bosocmputer's account_ocr_gemini handler drives
// Gemini over document images. It exists as one concrete, swappable
// Engine; PaddleOCR/Tesseract/cloud-vision engines satisfy the same
// interface without the pipeline changing.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine dials the Gemini API and returns an Engine. Callers
// normally pass this as the factory to ocr.NewReader rather than calling
// it directly, so the dial only happens on first real Detect.
func NewGeminiEngine(ctx context.Context, apiKey, modelName string) (*GeminiEngine, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ocr: gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: modelName}, nil
}

func (e *GeminiEngine) Name() string { return "gemini:" + e.model }

// Close releases the underlying client connection.
func (e *GeminiEngine) Close() error { return e.client.Close() }

// Detect asks the Gemini model to return every text region on the page as
// a JSON array and parses that array into TextBlocks. Confidence
// filtering and bbox normalization happen one layer up, in Reader.
func (e *GeminiEngine) Detect(ctx context.Context, pageBytes []byte) ([]model.TextBlock, error) {
	mime := sniffMIME(pageBytes)
	gm := e.client.GenerativeModel(e.model)
	gm.SetTemperature(0)

	resp, err := gm.GenerateContent(ctx, genai.ImageData(mime, pageBytes), genai.Text(detectPrompt))
	if err != nil {
		return nil, fmt.Errorf("ocr: gemini generate: %w", err)
	}

	raw := extractText(resp)
	return parseDetections(raw), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// parseDetections tolerates a response wrapped in markdown code fences,
// which Gemini adds more often than not despite being told not to.
func parseDetections(raw string) []model.TextBlock {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if !json.Valid([]byte(raw)) {
		return nil
	}

	var blocks []model.TextBlock
	gjson.Parse(raw).ForEach(func(_, item gjson.Result) bool {
		x := int(item.Get("x").Int())
		y := int(item.Get("y").Int())
		w := int(item.Get("w").Int())
		h := int(item.Get("h").Int())
		blocks = append(blocks, model.TextBlock{
			Text:       item.Get("text").String(),
			Box:        model.BBox{X0: x, Y0: y, X1: x + w, Y1: y + h},
			Confidence: item.Get("confidence").Float(),
		})
		return true
	})
	return blocks
}

func sniffMIME(b []byte) string {
	switch {
	case len(b) >= 8 && b[0] == 0x89 && b[1] == 'P':
		return geminiFormat["png"]
	case len(b) >= 12 && string(b[8:12]) == "WEBP":
		return geminiFormat["webp"]
	default:
		return geminiFormat["jpeg"]
	}
}
