package chat

import (
	"time"

	"github.com/upb/llm-chat-relay/services/providers"
)

// Request is one chat turn as received from a caller
type Request struct {
	// Message is the new user turn
	Message string

	// Provider is the caller-selected provider identifier, unparsed
	Provider string

	// History holds prior turns, oldest first
	History []providers.Message
}

// Outcome is the result of a successful dispatch
type Outcome struct {
	Success    bool
	Response   string
	Model      string
	Provider   providers.ProviderID
	TokensUsed int

	// Fallback is true when the requested provider failed and another one answered
	Fallback bool

	// OriginalError is the requested provider's failure message when Fallback is set
	OriginalError string

	Latency time.Duration
}

// Options configures the dispatcher
type Options struct {
	// ProviderTimeout bounds each individual provider call
	ProviderTimeout time.Duration

	// MaxHistory is the number of most recent history turns forwarded
	MaxHistory int
}

// DefaultOptions returns the dispatcher defaults
func DefaultOptions() Options {
	return Options{
		ProviderTimeout: 30 * time.Second,
		MaxHistory:      10,
	}
}
