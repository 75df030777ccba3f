// Package client is a Go client for the chat relay HTTP API. Conversation
// history lives with the caller and a trailing window of it is resent on
// every call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/upb/llm-chat-relay/models"
)

const (
	DefaultBaseURL = "http://localhost:3001"

	// DefaultHistoryWindow matches the server's default trailing window
	DefaultHistoryWindow = 10

	maxResponseBody = 4 << 20
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status          string    `json:"status"`
	AvailableModels []string  `json:"availableModels"`
	Timestamp       time.Time `json:"timestamp"`
}

// ModelInfo is one entry of GET /models
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Available   bool   `json:"available"`
	Description string `json:"description"`
}

// HistoryMessage is one prior turn sent with a chat request
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message             string           `json:"message"`
	Model               string           `json:"model"`
	ConversationHistory []HistoryMessage `json:"conversationHistory,omitempty"`
}

// ChatResponse is the success body of POST /chat
type ChatResponse struct {
	Success       bool      `json:"success"`
	Response      string    `json:"response"`
	Model         string    `json:"model"`
	Provider      string    `json:"provider,omitempty"`
	TokensUsed    int       `json:"tokensUsed"`
	Timestamp     time.Time `json:"timestamp"`
	Fallback      bool      `json:"fallback,omitempty"`
	OriginalError string    `json:"originalError,omitempty"`
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
	Details    interface{}
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("chat relay returned %d: %s", e.StatusCode, e.Message)
	if s, ok := e.Details.(string); ok && s != "" {
		msg += ": " + s
	}
	return msg
}

// Client talks to a chat relay server
type Client struct {
	baseURL       string
	httpClient    *http.Client
	historyWindow int
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHistoryWindow sets how many prior messages are sent per call
func WithHistoryWindow(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.historyWindow = n
		}
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models calls GET /models
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	if err := c.do(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send calls POST /chat with an explicit history
func (c *Client) Send(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends message to model with the conversation's trailing window as
// history. The user message is appended before the call and the reply after
// a successful one.
func (c *Client) Chat(ctx context.Context, conv *models.Conversation, message, model string) (*ChatResponse, error) {
	window := conv.Window(c.historyWindow)
	history := make([]HistoryMessage, 0, len(window))
	for _, m := range window {
		history = append(history, HistoryMessage{Role: string(m.Role), Content: m.Content})
	}

	if err := conv.Append(models.NewUserMessage(message)); err != nil {
		return nil, err
	}

	resp, err := c.Send(ctx, &ChatRequest{
		Message:             message,
		Model:               model,
		ConversationHistory: history,
	})
	if err != nil {
		return nil, err
	}

	reply := models.NewAssistantMessage(resp.Response, resp.Model, resp.TokensUsed)
	reply.Fallback = resp.Fallback
	if err := conv.Append(reply); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newAPIError(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	var body struct {
		Error   string      `json:"error"`
		Details interface{} `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		apiErr.Message = text
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
