package handler

import (
	"errors"
	"net/http"

	"shopassistant/internal/model"
	"shopassistant/internal/repository"
	"shopassistant/internal/service"

	"github.com/gin-gonic/gin"
)

var validActions = map[string]bool{
	"click":        true,
	"add_to_cart":  true,
	"view_details": true,
}

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	chatService *service.ChatService
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(chatService *service.ChatService) *FeedbackHandler {
	return &FeedbackHandler{
		chatService: chatService,
	}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !validActions[req.Action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action. Must be one of: click, add_to_cart, view_details"})
		return
	}

	err := h.chatService.RecordFeedback(c.Request.Context(), &req)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No reply to attach feedback to in this session"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log feedback: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback logged successfully",
	})
}

// List handles GET /api/v1/feedback/:session_id
func (h *FeedbackHandler) List(c *gin.Context) {
	sessionID := c.Param("session_id")
	feedback, err := h.chatService.Feedback(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get feedback: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.FeedbackListResponse{
		SessionID: sessionID,
		Feedback:  feedback,
		Total:     len(feedback),
	})
}
