package translator

import (
	"context"
	"errors"
)

// Provider is a chat-completion backend the LLM translator drives. It is
// deliberately narrower than a general chat API: one system/user request
// in, one string out, because translation never needs streaming.
type Provider interface {
	// Name identifies the backend for logging.
	Name() string
	// Test sends a minimal request to verify credentials and connectivity.
	Test(ctx context.Context) (string, error)
	// Complete sends a system+user request at low temperature and returns
	// the raw text response.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ProviderConfig configures a Provider constructed by NewProvider.
type ProviderConfig struct {
	Provider        string // openai, anthropic, compatible
	APIKey          string
	BaseURL         string // optional for openai, required for compatible
	Model           string
	Thinking        bool
	ThinkingBudget  int
	ReasoningEffort string
}

const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderCompatible = "compatible"
)

var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrMissingAPIKey   = errors.New("API key is required")
	ErrMissingBaseURL  = errors.New("base URL is required for compatible provider")
	ErrMissingModel    = errors.New("model is required")
)

// NewProvider constructs the Provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Thinking, cfg.ReasoningEffort), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Thinking, cfg.ThinkingBudget), nil
	case ProviderCompatible:
		if cfg.BaseURL == "" {
			return nil, ErrMissingBaseURL
		}
		return NewCompatibleProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Thinking, cfg.ThinkingBudget, cfg.ReasoningEffort), nil
	default:
		return nil, ErrInvalidProvider
	}
}

// translateTemperature is the low, deterministic-leaning temperature every
// provider uses for translation requests.
const translateTemperature = 0.3
