package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/secrets"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co"
	DefaultModel   = "mistralai/Mistral-7B-Instruct-v0.2"

	maxBody = 1 << 20
)

// Config holds the Hugging Face adapter settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Generation  providers.GenerationConfig
	HTTPClient  *http.Client
	CountTokens providers.TokenCounter
}

// Adapter implements the Provider interface for the Hugging Face Inference API.
// The API is a text-continuation endpoint, so history is flattened into a
// single prompt.
type Adapter struct {
	config   Config
	redactor *secrets.Redactor
}

// NewAdapter creates a new Hugging Face adapter
func NewAdapter(config Config) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Generation == (providers.GenerationConfig{}) {
		config.Generation = providers.DefaultGenerationConfig()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.CountTokens == nil {
		config.CountTokens = providers.EstimateTokens
	}

	return &Adapter{
		config:   config,
		redactor: secrets.NewRedactor(config.APIKey),
	}
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ProviderID {
	return providers.HuggingFace
}

// Available reports whether an access token was configured
func (a *Adapter) Available() bool {
	return a.config.APIKey != ""
}

// Invoke sends the flattened conversation for text generation
func (a *Adapter) Invoke(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if !a.Available() {
		return nil, providers.NewUnavailableError(a.ID())
	}

	body, err := json.Marshal(&inferenceRequest{
		Inputs: BuildPrompt(req),
		Parameters: parameters{
			MaxNewTokens:   a.config.Generation.MaxTokens,
			Temperature:    a.config.Generation.Temperature,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return nil, a.fail("failed to encode request", 0, err)
	}

	url := fmt.Sprintf("%s/models/%s", a.config.BaseURL, a.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, a.fail("failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	httpResp, err := a.config.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, a.fail(err.Error(), 0, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody))
	if err != nil {
		return nil, a.fail("failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.fail(fmt.Sprintf("%d %s", httpResp.StatusCode, errorMessage(raw, httpResp.StatusCode)), httpResp.StatusCode, nil)
	}

	text, apiErr := parseResponse(raw)
	if apiErr != "" {
		return nil, a.fail(apiErr, httpResp.StatusCode, nil)
	}

	text = strings.TrimSpace(text)
	return &providers.ChatResponse{
		Text:       text,
		Model:      a.config.Model,
		TokensUsed: a.config.CountTokens(text),
	}, nil
}

// BuildPrompt flattens the history and new message into a dialogue transcript
// ending with an open assistant turn
func BuildPrompt(req *providers.ChatRequest) string {
	var b strings.Builder
	for _, msg := range req.History {
		if msg.Role == providers.RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(req.Message)
	b.WriteString("\nAssistant:")
	return b.String()
}

// parseResponse accepts the list form, the single object form and the error
// form the Inference API returns
func parseResponse(raw []byte) (text string, apiErr string) {
	var list []generation
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return "", "response contained no generations"
		}
		return list[0].GeneratedText, ""
	}

	var obj struct {
		generation
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Error != "" {
			return "", obj.Error
		}
		return obj.GeneratedText, ""
	}

	return "", "unexpected response format"
}

func errorMessage(raw []byte, status int) string {
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Error != "" {
		return obj.Error
	}
	if message := strings.TrimSpace(string(raw)); message != "" {
		return message
	}
	return http.StatusText(status)
}

func (a *Adapter) fail(message string, status int, cause error) error {
	return providers.NewRequestFailedError(a.ID(), a.redactor.Redact(message), status, cause)
}

type inferenceRequest struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}
