package mistral

import (
	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/providers/openai"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1"
	DefaultModel   = "mistral-small-latest"
)

// Config holds the Mistral adapter settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Generation  providers.GenerationConfig
	CountTokens providers.TokenCounter
}

// NewAdapter creates a Mistral adapter. Mistral serves an OpenAI-compatible
// chat completions endpoint; conversations are sent without a system prompt.
func NewAdapter(config Config) (*openai.Adapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	return openai.NewCompatibleAdapter(providers.Mistral, openai.Config{
		APIKey:      config.APIKey,
		BaseURL:     config.BaseURL,
		Model:       config.Model,
		Generation:  config.Generation,
		CountTokens: config.CountTokens,
	})
}
