package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-relay/middleware"
	"github.com/upb/llm-chat-relay/services/chat"
	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/secrets"
	"github.com/upb/llm-chat-relay/utils"
)

// maxChatBodyBytes bounds the /chat request body
const maxChatBodyBytes = 1 << 20

// ChatRequest is the POST /chat body
type ChatRequest struct {
	Message             string           `json:"message" validate:"notblank"`
	Model               string           `json:"model" validate:"required"`
	ConversationHistory []HistoryMessage `json:"conversationHistory" validate:"omitempty,dive"`
}

// HistoryMessage is one prior conversation turn
type HistoryMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// ChatResponse is the POST /chat success body
type ChatResponse struct {
	Success       bool      `json:"success"`
	Response      string    `json:"response"`
	Model         string    `json:"model"`
	Provider      string    `json:"provider"`
	TokensUsed    int       `json:"tokensUsed"`
	Timestamp     time.Time `json:"timestamp"`
	Fallback      bool      `json:"fallback,omitempty"`
	OriginalError string    `json:"originalError,omitempty"`
}

// ChatService defines the dispatcher operations the handler needs
type ChatService interface {
	Chat(ctx context.Context, req *chat.Request) (*chat.Outcome, error)
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service  ChatService
	redactor *secrets.Redactor
	logger   *zap.Logger
}

// ChatHandlerOption customizes a ChatHandler
type ChatHandlerOption func(*ChatHandler)

// WithRedactor masks configured credentials in failures before they are
// logged or written
func WithRedactor(redactor *secrets.Redactor) ChatHandlerOption {
	return func(h *ChatHandler) {
		h.redactor = redactor
	}
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatService, logger *zap.Logger, opts ...ChatHandlerOption) *ChatHandler {
	h := &ChatHandler{
		service:  service,
		redactor: secrets.NewRedactor(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleChat handles POST /chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var chatReq ChatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := decoder.Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))

		message := "Invalid request body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "Request body too large"
		} else if errors.Is(err, io.EOF) {
			message = "Message and model are required"
		}
		_ = utils.WriteBadRequest(w, message, nil)
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	history := make([]providers.Message, 0, len(chatReq.ConversationHistory))
	for _, m := range chatReq.ConversationHistory {
		history = append(history, providers.Message{
			Role:    providers.Role(m.Role),
			Content: m.Content,
		})
	}

	h.logger.Debug("processing chat request",
		zap.String("request_id", requestID),
		zap.String("model", chatReq.Model),
		zap.Int("history", len(history)))

	outcome, err := h.service.Chat(ctx, &chat.Request{
		Message:  chatReq.Message,
		Provider: chatReq.Model,
		History:  history,
	})
	if err != nil {
		err = h.redactor.RedactError(err)
		h.logger.Warn("chat request failed",
			zap.String("request_id", requestID),
			zap.String("model", chatReq.Model),
			zap.Error(err))
		HandleServiceError(w, err, h.redactor, h.logger)
		return
	}

	response := ChatResponse{
		Success:       outcome.Success,
		Response:      outcome.Response,
		Model:         outcome.Model,
		Provider:      string(outcome.Provider),
		TokensUsed:    outcome.TokensUsed,
		Timestamp:     utils.Now(),
		Fallback:      outcome.Fallback,
		OriginalError: h.redactor.Redact(outcome.OriginalError),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
