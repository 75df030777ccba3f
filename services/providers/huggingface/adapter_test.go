package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/llm-chat-relay/services/providers"
)

const testKey = "hf_TestToken1234567890abcdef"

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAdapter(Config{
		APIKey:      testKey,
		BaseURL:     server.URL,
		CountTokens: func(text string) int { return len(text) },
	})
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		req      *providers.ChatRequest
		expected string
	}{
		{
			name:     "no history",
			req:      &providers.ChatRequest{Message: "hi"},
			expected: "User: hi\nAssistant:",
		},
		{
			name: "with history",
			req: &providers.ChatRequest{
				Message: "and now?",
				History: []providers.Message{
					{Role: providers.RoleUser, Content: "hello"},
					{Role: providers.RoleAssistant, Content: "hi there"},
				},
			},
			expected: "User: hello\nAssistant: hi there\nUser: and now?\nAssistant:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildPrompt(tt.req))
		})
	}
}

func TestAdapter_Invoke_Unavailable(t *testing.T) {
	adapter := NewAdapter(Config{})

	assert.Equal(t, providers.HuggingFace, adapter.ID())
	assert.False(t, adapter.Available())

	_, err := adapter.Invoke(context.Background(), &providers.ChatRequest{Message: "hi"})
	assert.True(t, providers.IsUnavailable(err))
	assert.Equal(t, "Hugging Face API key not configured", err.Error())
}

func TestAdapter_Invoke_Success(t *testing.T) {
	var captured inferenceRequest

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+DefaultModel, r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Write([]byte(`[{"generated_text": "  I am fine.  "}]`))
	})

	resp, err := adapter.Invoke(context.Background(), &providers.ChatRequest{Message: "How are you?"})
	require.NoError(t, err)

	assert.Equal(t, "I am fine.", resp.Text)
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, len("I am fine."), resp.TokensUsed)

	assert.Equal(t, "User: How are you?\nAssistant:", captured.Inputs)
	assert.Equal(t, 1000, captured.Parameters.MaxNewTokens)
	assert.Equal(t, 0.7, captured.Parameters.Temperature)
	assert.False(t, captured.Parameters.ReturnFullText)
}

func TestAdapter_Invoke_ObjectResponse(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generated_text": "ok"}`))
	})

	resp, err := adapter.Invoke(context.Background(), &providers.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestAdapter_Invoke_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "model loading",
			status:      http.StatusServiceUnavailable,
			body:        `{"error": "Model is currently loading", "estimated_time": 20}`,
			wantMessage: "503 Model is currently loading",
		},
		{
			name:        "unauthorized echoes token",
			status:      http.StatusUnauthorized,
			body:        `{"error": "Invalid credentials in Authorization header: Bearer ` + testKey + `"}`,
			wantMessage: "[REDACTED]",
		},
		{
			name:        "error in ok response",
			status:      http.StatusOK,
			body:        `{"error": "input too long"}`,
			wantMessage: "input too long",
		},
		{
			name:        "empty list",
			status:      http.StatusOK,
			body:        `[]`,
			wantMessage: "no generations",
		},
		{
			name:        "garbage",
			status:      http.StatusOK,
			body:        `<html>`,
			wantMessage: "unexpected response format",
		},
		{
			name:        "plain text error",
			status:      http.StatusBadGateway,
			body:        `bad gateway`,
			wantMessage: "502 bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := adapter.Invoke(context.Background(), &providers.ChatRequest{Message: "hi"})

			require.Error(t, err)
			assert.True(t, providers.IsRequestFailed(err))
			assert.Contains(t, err.Error(), tt.wantMessage)
			assert.NotContains(t, err.Error(), testKey)
		})
	}
}
