package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kiwigeek/internal/model"
	"kiwigeek/internal/service"
)

// ValidateHandler exposes stateless quote validation
type ValidateHandler struct {
	assistant *service.AssistantService
}

// NewValidateHandler creates a new validate handler
func NewValidateHandler(assistant *service.AssistantService) *ValidateHandler {
	return &ValidateHandler{assistant: assistant}
}

// Validate handles POST /api/v1/quotes/validate
func (h *ValidateHandler) Validate(c *gin.Context) {
	var req model.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	if req.Budget != nil && !req.Budget.IsPositive() {
		BadRequest(c, "Budget must be positive")
		return
	}

	resp, err := h.assistant.ValidateStandalone(&req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
