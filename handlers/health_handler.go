package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string                 `json:"status"`
	AvailableModels []providers.ProviderID `json:"availableModels"`
	Timestamp       time.Time              `json:"timestamp"`
}

// ProviderCatalog is the read-only registry view the handlers need
type ProviderCatalog interface {
	Available() []providers.ProviderID
	Descriptors() []providers.Descriptor
}

// HealthHandler handles health and model listing requests
type HealthHandler struct {
	catalog ProviderCatalog
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(catalog ProviderCatalog, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// HandleHealth handles GET /health. It always returns 200 while the process is
// serving, even with no providers configured.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:          "OK",
		AvailableModels: h.catalog.Available(),
		Timestamp:       utils.Now(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleModels handles GET /models
func (h *HealthHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.catalog.Descriptors()); err != nil {
		h.logger.Error("failed to write models response", zap.Error(err))
	}
}
