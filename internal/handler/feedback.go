package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kiwigeek/internal/model"
	"kiwigeek/internal/service"
)

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	assistant *service.AssistantService
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(assistant *service.AssistantService) *FeedbackHandler {
	return &FeedbackHandler{
		assistant: assistant,
	}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request. Action must be one of: view, whatsapp, buy")
		return
	}

	if err := h.assistant.LogFeedback(c.Request.Context(), &req); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback logged successfully",
	})
}
