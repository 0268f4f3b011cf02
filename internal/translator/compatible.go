package translator

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// CompatibleProvider implements Provider for any OpenAI-compatible chat API
// (OpenRouter, Azure OpenAI, Ollama, local vLLM, ...).
type CompatibleProvider struct {
	client          openai.Client
	model           string
	thinking        bool
	thinkingBudget  int
	reasoningEffort string
}

// NewCompatibleProvider creates an OpenAI-compatible Provider pointed at
// baseURL.
func NewCompatibleProvider(apiKey, baseURL, model string, thinking bool, thinkingBudget int, reasoningEffort string) *CompatibleProvider {
	return &CompatibleProvider{
		client:          openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		model:           model,
		thinking:        thinking,
		thinkingBudget:  thinkingBudget,
		reasoningEffort: reasoningEffort,
	}
}

func (p *CompatibleProvider) Name() string { return ProviderCompatible }

func (p *CompatibleProvider) Test(ctx context.Context) (string, error) {
	return p.send(ctx, "", "Hello world", openai.Int(50))
}

func (p *CompatibleProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return p.send(ctx, systemPrompt, userPrompt, openai.Int(8192))
}

func (p *CompatibleProvider) send(ctx context.Context, systemPrompt, userPrompt string, maxTokens openai.Opt[int64]) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(translateTemperature),
	}

	var opts []option.RequestOption
	if p.thinking {
		reasoning := map[string]any{}
		if p.reasoningEffort != "" {
			reasoning["effort"] = p.reasoningEffort
		} else if p.thinkingBudget > 0 {
			reasoning["max_tokens"] = p.thinkingBudget
		}
		if len(reasoning) > 0 {
			opts = append(opts, option.WithJSONSet("reasoning", reasoning))
		} else {
			params.MaxTokens = maxTokens
		}
	} else {
		params.MaxTokens = maxTokens
		opts = append(opts, option.WithJSONSet("reasoning", map[string]any{"enabled": false}))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
