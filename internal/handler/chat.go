package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kiwigeek/internal/model"
	"kiwigeek/internal/service"
)

// ChatHandler handles conversation HTTP requests
type ChatHandler struct {
	assistant    *service.AssistantService
	defaultTurns int
	maxTurns     int
}

// NewChatHandler creates a new chat handler
func NewChatHandler(assistant *service.AssistantService) *ChatHandler {
	return &ChatHandler{
		assistant:    assistant,
		defaultTurns: 50,
		maxTurns:     500,
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.assistant.HandleTurn(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ChatStream handles POST /api/v1/chat/stream - SSE streaming turn
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Streaming not supported")
		return
	}

	_, err := h.assistant.HandleTurnStream(c.Request.Context(), req.SessionID, req.Message, func(event string, data any) error {
		sendSSE(c, event, data)
		flusher.Flush()
		return nil
	})
	if err != nil {
		_ = c.Error(err)
		_, apiErr := classifyError(err)
		sendSSE(c, "error", apiErr)
		flusher.Flush()
		return
	}

	sendSSE(c, "done", nil)
	flusher.Flush()
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"code\": \"%s\", \"message\": \"JSON marshal failed\"}\n\n", ErrCodeInternalError)
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}

// GetSession handles GET /api/v1/sessions/:id
func (h *ChatHandler) GetSession(c *gin.Context) {
	view, err := h.assistant.Session(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ResetSession handles DELETE /api/v1/sessions/:id
func (h *ChatHandler) ResetSession(c *gin.Context) {
	view, err := h.assistant.ResetSession(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": view,
		"message": service.GreetingMessage,
	})
}

// ListTurns handles GET /api/v1/sessions/:id/turns
func (h *ChatHandler) ListTurns(c *gin.Context) {
	limit := h.defaultTurns
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(c, "Invalid limit")
			return
		}
		limit = parsed
	}
	if limit > h.maxTurns {
		limit = h.maxTurns
	}

	turns, err := h.assistant.Turns(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("id"),
		"turns":      turns,
	})
}
