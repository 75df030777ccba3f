package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProviderID identifies one of the known LLM providers
type ProviderID string

const (
	Gemini      ProviderID = "gemini"
	HuggingFace ProviderID = "huggingface"
	OpenAI      ProviderID = "openai"
	Mistral     ProviderID = "mistral"
)

// KnownProviders is the fixed catalogue, in the order /models reports it
var KnownProviders = []ProviderID{Gemini, HuggingFace, OpenAI, Mistral}

// ErrUnknownProvider is returned by ParseProviderID for unrecognized identifiers
var ErrUnknownProvider = errors.New("unknown provider")

// ParseProviderID resolves a caller-supplied identifier. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case Gemini, HuggingFace, OpenAI, Mistral:
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// DisplayName returns the human-readable provider name
func (id ProviderID) DisplayName() string {
	switch id {
	case Gemini:
		return "Google Gemini"
	case HuggingFace:
		return "Hugging Face"
	case OpenAI:
		return "OpenAI GPT"
	case Mistral:
		return "Mistral AI"
	default:
		return string(id)
	}
}

// Description returns a short description of the provider for /models
func (id ProviderID) Description() string {
	switch id {
	case Gemini:
		return "Google's multimodal Gemini models"
	case HuggingFace:
		return "Open-source models served by the Hugging Face Inference API"
	case OpenAI:
		return "OpenAI's GPT chat models"
	case Mistral:
		return "Mistral AI's hosted chat models"
	default:
		return ""
	}
}

func (id ProviderID) String() string {
	return string(id)
}

// Provider is the single capability every adapter exposes
type Provider interface {
	// ID returns the provider identifier
	ID() ProviderID

	// Available reports whether the provider client was constructed
	Available() bool

	// Invoke sends one chat turn with its history and returns the normalized result
	Invoke(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Role is the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn relayed to a provider
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the uniform adapter input
type ChatRequest struct {
	// Message is the new user turn
	Message string

	// History holds prior turns in chronological order
	History []Message
}

// ChatResponse is the uniform adapter output
type ChatResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// GenerationConfig is the fixed budget applied to every provider call
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
}

// DefaultGenerationConfig returns the budget used when none is configured
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// ErrorKind classifies provider failures. Both kinds trigger a fallback.
type ErrorKind string

const (
	KindUnavailable   ErrorKind = "provider_unavailable"
	KindRequestFailed ErrorKind = "provider_request_failed"
)

// ProviderError represents an error from a provider adapter
type ProviderError struct {
	// Provider that generated the error
	Provider ProviderID

	// Kind of failure
	Kind ErrorKind

	// Message is human readable and free of credentials
	Message string

	// StatusCode is the upstream HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewUnavailableError reports an adapter whose client was never constructed
func NewUnavailableError(id ProviderID) *ProviderError {
	return &ProviderError{
		Provider: id,
		Kind:     KindUnavailable,
		Message:  fmt.Sprintf("%s API key not configured", id.DisplayName()),
	}
}

// NewRequestFailedError wraps a transport or API failure. message must already
// be redacted by the caller.
func NewRequestFailedError(id ProviderID, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   id,
		Kind:       KindRequestFailed,
		Message:    fmt.Sprintf("%s API error: %s", id.DisplayName(), message),
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// IsUnavailable checks if an error is a ProviderUnavailable error
func IsUnavailable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind == KindUnavailable
	}
	return false
}

// IsRequestFailed checks if an error is a ProviderRequestFailed error
func IsRequestFailed(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind == KindRequestFailed
	}
	return false
}

// TrailingWindow returns at most n of the most recent turns, oldest first.
// n <= 0 means no limit.
func TrailingWindow(history []Message, n int) []Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
