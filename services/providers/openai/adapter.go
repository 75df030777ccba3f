package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/secrets"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"

	// DefaultSystemPrompt leads every OpenAI conversation
	DefaultSystemPrompt = "You are a helpful assistant."
)

// Config holds the settings for an OpenAI-compatible chat adapter
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Generation   providers.GenerationConfig
	CountTokens  providers.TokenCounter
}

// Adapter implements the Provider interface over an OpenAI-compatible chat
// completions API
type Adapter struct {
	id       providers.ProviderID
	config   Config
	llm      llms.Model
	redactor *secrets.Redactor
}

// NewAdapter creates an adapter for OpenAI itself
func NewAdapter(config Config) (*Adapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return NewCompatibleAdapter(providers.OpenAI, config)
}

// NewCompatibleAdapter creates an adapter for any provider that speaks the
// OpenAI chat completions protocol. BaseURL and Model must be set. The client
// is only constructed when an API key is present.
func NewCompatibleAdapter(id providers.ProviderID, config Config) (*Adapter, error) {
	if config.Generation == (providers.GenerationConfig{}) {
		config.Generation = providers.DefaultGenerationConfig()
	}
	if config.CountTokens == nil {
		config.CountTokens = providers.EstimateTokens
	}

	a := &Adapter{
		id:       id,
		config:   config,
		redactor: secrets.NewRedactor(config.APIKey),
	}

	if config.APIKey == "" {
		return a, nil
	}

	llm, err := lcopenai.New(
		lcopenai.WithToken(config.APIKey),
		lcopenai.WithBaseURL(config.BaseURL),
		lcopenai.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %s", id, a.redactor.Redact(err.Error()))
	}
	a.llm = llm

	return a, nil
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ProviderID {
	return a.id
}

// Available reports whether the client was constructed
func (a *Adapter) Available() bool {
	return a.llm != nil
}

// Model returns the configured model name
func (a *Adapter) Model() string {
	return a.config.Model
}

// Invoke sends the conversation as a chat completion
func (a *Adapter) Invoke(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if !a.Available() {
		return nil, providers.NewUnavailableError(a.id)
	}

	resp, err := a.llm.GenerateContent(ctx, a.buildMessages(req),
		llms.WithModel(a.config.Model),
		llms.WithMaxTokens(a.config.Generation.MaxTokens),
		llms.WithTemperature(a.config.Generation.Temperature),
	)
	if err != nil {
		return nil, providers.NewRequestFailedError(a.id, a.redactor.Redact(err.Error()), 0, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, providers.NewRequestFailedError(a.id, "response contained no choices", 0, nil)
	}

	choice := resp.Choices[0]
	tokens := totalTokens(choice.GenerationInfo)
	if tokens == 0 {
		tokens = a.config.CountTokens(choice.Content)
	}

	return &providers.ChatResponse{
		Text:       choice.Content,
		Model:      a.config.Model,
		TokensUsed: tokens,
	}, nil
}

// buildMessages maps the uniform history onto langchaingo message types
func (a *Adapter) buildMessages(req *providers.ChatRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	if a.config.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, a.config.SystemPrompt))
	}
	for _, msg := range req.History {
		role := schema.ChatMessageTypeHuman
		if msg.Role == providers.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}
	return append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Message))
}

func totalTokens(info map[string]any) int {
	switch v := info["TotalTokens"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
