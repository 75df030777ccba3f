package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-relay/services"
	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/secrets"
	"github.com/upb/llm-chat-relay/utils"
)

// HandleServiceError maps domain errors to HTTP responses. Provider messages
// pass through redactor before they are written or logged; a nil redactor
// still masks the well-known key shapes.
func HandleServiceError(w http.ResponseWriter, err error, redactor *secrets.Redactor, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	details := services.GetErrorDetails(err)

	switch {
	case services.IsValidationError(err):
		errors.As(err, &domainErr)
		if err := utils.WriteBadRequest(w, domainErr.Message, nonEmpty(details)); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnknownProviderError(err):
		errors.As(err, &domainErr)
		if err := utils.WriteBadRequest(w, domainErr.Message, map[string]interface{}{
			"supportedModels": providers.KnownProviders,
		}); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsAllProvidersFailedError(err):
		summary := redactor.Redact(services.FailureSummary(err))
		if err := utils.WriteInternalServerError(w, "Failed to get AI response", summary); err != nil {
			logger.Error("failed to write provider failure response", zap.Error(err))
		}

	case errors.Is(err, context.DeadlineExceeded):
		if err := utils.WriteError(w, http.StatusGatewayTimeout, "Request timed out", nil); err != nil {
			logger.Error("failed to write timeout response", zap.Error(err))
		}

	case errors.Is(err, context.Canceled):
		// the client is gone; nothing useful can be written
		logger.Debug("request cancelled by client")

	default:
		logger.Error("unhandled error type",
			zap.Error(redactor.RedactError(err)),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred", nil); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}

	if domainErr != nil {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)

		message := err.Error()
		if _, ok := fields["message"]; ok {
			message = "Message and model are required"
		} else if _, ok := fields["model"]; ok {
			message = "Message and model are required"
		}

		if err := utils.WriteBadRequest(w, message, fields); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func nonEmpty(details map[string]interface{}) interface{} {
	if len(details) == 0 {
		return nil
	}
	return details
}
