package gemini

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
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash"

	// maxErrorBody bounds how much of an upstream error body is read
	maxErrorBody = 64 << 10
)

// Config holds the Gemini adapter settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Generation  providers.GenerationConfig
	HTTPClient  *http.Client
	CountTokens providers.TokenCounter
}

// Adapter implements the Provider interface for Google Gemini
type Adapter struct {
	config   Config
	redactor *secrets.Redactor
}

// NewAdapter creates a new Gemini adapter. Without an API key the adapter is
// constructed but reports itself unavailable.
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
	return providers.Gemini
}

// Available reports whether an API key was configured
func (a *Adapter) Available() bool {
	return a.config.APIKey != ""
}

// Invoke sends the conversation to generateContent
func (a *Adapter) Invoke(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if !a.Available() {
		return nil, providers.NewUnavailableError(a.ID())
	}

	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, a.fail("failed to encode request", 0, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.config.BaseURL, a.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, a.fail("failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.config.APIKey)

	httpResp, err := a.config.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, a.fail(err.Error(), 0, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp)
	}

	var resp generateContentResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, a.fail("failed to decode response", httpResp.StatusCode, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, a.fail("prompt blocked: "+resp.PromptFeedback.BlockReason, httpResp.StatusCode, nil)
	}
	if len(resp.Candidates) == 0 {
		return nil, a.fail("response contained no candidates", httpResp.StatusCode, nil)
	}

	candidate := resp.Candidates[0]
	if blockedFinish(candidate.FinishReason) {
		return nil, a.fail("response blocked: finish reason "+candidate.FinishReason, httpResp.StatusCode, nil)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, a.fail("response contained no text", httpResp.StatusCode, nil)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = resp.UsageMetadata.TotalTokenCount
	}
	if tokens == 0 {
		tokens = a.config.CountTokens(text.String())
	}

	return &providers.ChatResponse{
		Text:       text.String(),
		Model:      a.config.Model,
		TokensUsed: tokens,
	}, nil
}

// buildRequest maps the uniform history onto Gemini contents. Gemini calls the
// assistant role "model".
func (a *Adapter) buildRequest(req *providers.ChatRequest) *generateContentRequest {
	contents := make([]content, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := "user"
		if msg.Role == providers.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: msg.Content}},
		})
	}
	contents = append(contents, content{
		Role:  "user",
		Parts: []part{{Text: req.Message}},
	})

	return &generateContentRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			MaxOutputTokens: a.config.Generation.MaxTokens,
			Temperature:     a.config.Generation.Temperature,
		},
	}
}

// blockedFinish reports whether a candidate stopped for any reason other than
// a natural end or the output limit
func blockedFinish(reason string) bool {
	switch reason {
	case "", "STOP", "MAX_TOKENS":
		return false
	default:
		return true
	}
}

func (a *Adapter) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var errResp errorResponse
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return a.fail(fmt.Sprintf("%d %s", resp.StatusCode, message), resp.StatusCode, nil)
}

func (a *Adapter) fail(message string, status int, cause error) error {
	return providers.NewRequestFailedError(a.ID(), a.redactor.Redact(message), status, cause)
}

// Gemini wire types

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
