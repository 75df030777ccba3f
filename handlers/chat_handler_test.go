package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/llm-chat-relay/middleware"
	"github.com/upb/llm-chat-relay/services"
	"github.com/upb/llm-chat-relay/services/chat"
	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/secrets"
)

// MockChatService is a mock implementation of ChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, req *chat.Request) (*chat.Outcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.Outcome), args.Error(1)
}

func newChatRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithRequestID(req.Context(), "req-1"))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandleChat(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful chat", func(t *testing.T) {
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, logger)

		mockService.On("Chat", mock.Anything, mock.MatchedBy(func(req *chat.Request) bool {
			return req.Message == "Hello" &&
				req.Provider == "gemini" &&
				len(req.History) == 2 &&
				req.History[1].Role == providers.RoleAssistant
		})).Return(&chat.Outcome{
			Success:    true,
			Response:   "Hi! How can I help?",
			Model:      "gemini-1.5-flash",
			Provider:   providers.Gemini,
			TokensUsed: 12,
		}, nil)

		body, _ := json.Marshal(ChatRequest{
			Message: "Hello",
			Model:   "gemini",
			ConversationHistory: []HistoryMessage{
				{Role: "user", Content: "hey"},
				{Role: "assistant", Content: "hello"},
			},
		})
		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, string(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeBody(t, w)
		assert.Equal(t, true, response["success"])
		assert.Equal(t, "Hi! How can I help?", response["response"])
		assert.Equal(t, "gemini-1.5-flash", response["model"])
		assert.Equal(t, float64(12), response["tokensUsed"])
		assert.NotEmpty(t, response["timestamp"])
		assert.NotContains(t, response, "fallback")
		assert.NotContains(t, response, "originalError")

		mockService.AssertExpectations(t)
	})

	t.Run("fallback outcome", func(t *testing.T) {
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, logger)

		mockService.On("Chat", mock.Anything, mock.Anything).Return(&chat.Outcome{
			Success:       true,
			Response:      "answer",
			Model:         "gemini-1.5-flash",
			Provider:      providers.Gemini,
			TokensUsed:    3,
			Fallback:      true,
			OriginalError: "Mistral AI API key not configured",
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"message":"hi","model":"mistral"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeBody(t, w)
		assert.Equal(t, true, response["fallback"])
		assert.Equal(t, "Mistral AI API key not configured", response["originalError"])
		assert.Equal(t, "gemini-1.5-flash", response["model"])
	})

	t.Run("validation failures never reach the service", func(t *testing.T) {
		bodies := map[string]string{
			"empty body":      ``,
			"invalid json":    `{"message":`,
			"missing message": `{"model":"gemini"}`,
			"missing model":   `{"message":"hi"}`,
			"blank message":   `{"message":"   ","model":"gemini"}`,
			"bad role":        `{"message":"hi","model":"gemini","conversationHistory":[{"role":"system","content":"x"}]}`,
		}

		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				mockService := new(MockChatService)
				handler := NewChatHandler(mockService, logger)

				w := httptest.NewRecorder()
				handler.HandleChat(w, newChatRequest(t, body))

				assert.Equal(t, http.StatusBadRequest, w.Code)
				response := decodeBody(t, w)
				assert.NotEmpty(t, response["error"])
				assert.NotEmpty(t, response["timestamp"])
				mockService.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("missing fields message", func(t *testing.T) {
		handler := NewChatHandler(new(MockChatService), logger)

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"model":"gemini"}`))

		response := decodeBody(t, w)
		assert.Equal(t, "Message and model are required", response["error"])
	})

	t.Run("body too large", func(t *testing.T) {
		handler := NewChatHandler(new(MockChatService), logger)

		big := `{"message":"` + strings.Repeat("a", maxChatBodyBytes) + `","model":"gemini"}`
		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, big))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Request body too large", decodeBody(t, w)["error"])
	})

	t.Run("unknown provider", func(t *testing.T) {
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, logger)

		mockService.On("Chat", mock.Anything, mock.Anything).
			Return(nil, services.NewUnknownProviderError("claude", providers.ErrUnknownProvider))

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"message":"hi","model":"claude"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		response := decodeBody(t, w)
		assert.Equal(t, "Invalid model: claude", response["error"])
	})

	t.Run("all providers failed", func(t *testing.T) {
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, logger)

		mockService.On("Chat", mock.Anything, mock.Anything).Return(nil,
			services.NewAllProvidersFailedError("gemini", providers.NewUnavailableError(providers.Gemini), "", nil))

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"message":"hi","model":"gemini"}`))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		response := decodeBody(t, w)
		assert.Equal(t, "Failed to get AI response", response["error"])
		assert.Equal(t, "Google Gemini API key not configured", response["details"])
		assert.NotEmpty(t, response["timestamp"])
	})

	t.Run("unexpected error", func(t *testing.T) {
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, logger)

		mockService.On("Chat", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"message":"hi","model":"gemini"}`))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "boom")
	})
}

func TestHandleChat_RedactsConfiguredKeys(t *testing.T) {
	const key = "k3y9z"

	t.Run("fallback original error", func(t *testing.T) {
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, zap.NewNop(), WithRedactor(secrets.NewRedactor(key)))
		mockService.On("Chat", mock.Anything, mock.Anything).Return(&chat.Outcome{
			Success:       true,
			Response:      "ok",
			Provider:      providers.OpenAI,
			Fallback:      true,
			OriginalError: "Google Gemini API error: key " + key + " rejected",
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"message":"hi","model":"gemini"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), key)
		assert.Equal(t, "Google Gemini API error: key [REDACTED] rejected", decodeBody(t, w)["originalError"])
	})

	t.Run("failure response and logs", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		mockService := new(MockChatService)
		handler := NewChatHandler(mockService, zap.New(core), WithRedactor(secrets.NewRedactor(key)))
		mockService.On("Chat", mock.Anything, mock.Anything).Return(nil,
			services.NewAllProvidersFailedError("gemini", errors.New("bad key "+key), "", nil))

		w := httptest.NewRecorder()
		handler.HandleChat(w, newChatRequest(t, `{"message":"hi","model":"gemini"}`))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), key)
		require.NotZero(t, logs.Len())
		for _, entry := range logs.All() {
			for k, v := range entry.ContextMap() {
				assert.NotContains(t, fmt.Sprint(v), key, k)
			}
		}
	})
}

func TestHandleChat_BodyReuse(t *testing.T) {
	mockService := new(MockChatService)
	handler := NewChatHandler(mockService, zap.NewNop())
	mockService.On("Chat", mock.Anything, mock.Anything).Return(&chat.Outcome{Success: true, Response: "ok"}, nil)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"hi","model":"openai"}`))
		handler.HandleChat(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	mockService.AssertNumberOfCalls(t, "Chat", 3)
}
