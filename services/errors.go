package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeUnknownProvider    ErrorType = "unknown_provider"
	ErrorTypeAllProvidersFailed ErrorType = "all_providers_failed"
)

// Detail keys carried by AllProvidersFailed errors
const (
	DetailProvider         = "provider"
	DetailOriginalError    = "original_error"
	DetailFallbackProvider = "fallback_provider"
	DetailFallbackError    = "fallback_error"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is; two domain errors match when their types do
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewValidationError reports a malformed chat request
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewUnknownProviderError reports a provider identifier outside the catalogue
func NewUnknownProviderError(model string, err error) *DomainError {
	return NewDomainError(ErrorTypeUnknownProvider, fmt.Sprintf("Invalid model: %s", model), err).
		WithDetail(DetailProvider, model)
}

// NewAllProvidersFailedError reports that the requested provider failed and no
// fallback succeeded. fallbackErr is nil when no fallback was available.
func NewAllProvidersFailedError(provider string, originalErr error, fallbackProvider string, fallbackErr error) *DomainError {
	e := NewDomainError(ErrorTypeAllProvidersFailed, "Failed to get AI response", originalErr).
		WithDetail(DetailProvider, provider)
	if originalErr != nil {
		e.WithDetail(DetailOriginalError, originalErr.Error())
	}
	if fallbackProvider != "" {
		e.WithDetail(DetailFallbackProvider, fallbackProvider)
	}
	if fallbackErr != nil {
		e.WithDetail(DetailFallbackError, fallbackErr.Error())
	}
	return e
}

// FailureSummary renders the provider messages of an AllProvidersFailed error
// as a single human-readable line
func FailureSummary(err error) string {
	details := GetErrorDetails(err)
	original, _ := details[DetailOriginalError].(string)
	fallback, _ := details[DetailFallbackError].(string)

	switch {
	case original != "" && fallback != "":
		return fmt.Sprintf("%s; fallback failed: %s", original, fallback)
	case original != "":
		return original
	case fallback != "":
		return fallback
	default:
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return domainErr.Message
		}
		if err != nil {
			return err.Error()
		}
		return ""
	}
}

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnknownProviderError checks if an error is an unknown provider error
func IsUnknownProviderError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnknownProvider
}

// IsAllProvidersFailedError checks if an error reports an exhausted fallback
func IsAllProvidersFailedError(err error) bool {
	return GetErrorType(err) == ErrorTypeAllProvidersFailed
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
