package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kiwigeek/internal/service"
)

// APIError represents a structured error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Common error codes
const (
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeUndecodableQuote     = "UNDECODABLE_QUOTE"
	ErrCodeAIServiceUnavailable = "AI_SERVICE_UNAVAILABLE"
	ErrCodeSessionNeedsReset    = "SESSION_NEEDS_RESET"
	ErrCodeTurnSuperseded       = "TURN_SUPERSEDED"
)

// RespondError sends a structured error response
func RespondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": APIError{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest sends a 400 error
func BadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// classifyError maps service errors to an HTTP status, an error code and a
// customer-facing message
func classifyError(err error) (int, APIError) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest, APIError{Code: ErrCodeBadRequest, Message: "El mensaje está vacío."}
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, APIError{Code: ErrCodeNotFound, Message: "La conversación no existe o expiró."}
	case errors.Is(err, service.ErrUndecodable):
		return http.StatusUnprocessableEntity, APIError{Code: ErrCodeUndecodableQuote, Message: "La cotización no tiene un formato válido.", Details: err.Error()}
	case errors.Is(err, service.ErrSessionNeedsReset):
		return http.StatusServiceUnavailable, APIError{Code: ErrCodeSessionNeedsReset, Message: service.ResetMessage}
	case errors.Is(err, service.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable, APIError{Code: ErrCodeAIServiceUnavailable, Message: service.ResendMessage}
	case errors.Is(err, service.ErrTurnSuperseded):
		return http.StatusConflict, APIError{Code: ErrCodeTurnSuperseded, Message: "Tu mensaje fue reemplazado por uno más reciente."}
	default:
		return http.StatusInternalServerError, APIError{Code: ErrCodeInternalError, Message: service.FailedMessage}
	}
}

// respondServiceError sends the structured error for a service failure
func respondServiceError(c *gin.Context, err error) {
	status, apiErr := classifyError(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": apiErr})
}
