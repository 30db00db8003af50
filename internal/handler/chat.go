package handler

import (
	"net/http"
	"strconv"

	"shopassistant/internal/model"
	"shopassistant/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService  *service.ChatService
	defaultLimit int
	maxLimit     int
}

// NewChatHandler creates a new chat handler. The limits apply to
// conversation history listings.
func NewChatHandler(chatService *service.ChatService, defaultLimit, maxLimit int) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// A missing id starts a new session. A present one is passed through as
	// is, even if malformed.
	sessionID := uuid.NewString()
	if req.SessionID != nil {
		sessionID = *req.SessionID
	}

	reply := h.chatService.Respond(c.Request.Context(), service.ChatInput{
		Message:   req.Message,
		SessionID: sessionID,
		User:      req.User,
	})

	c.JSON(http.StatusOK, model.ChatResponse{
		ChatReply: reply,
		SessionID: sessionID,
	})
}

// SessionContext handles GET /api/v1/sessions/:session_id/context
func (h *ChatHandler) SessionContext(c *gin.Context) {
	state, found, err := h.chatService.SessionContext(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get session: " + err.Error()})
		return
	}

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// Conversation handles GET /api/v1/conversations/:session_id
func (h *ChatHandler) Conversation(c *gin.Context) {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	if limit <= 0 {
		limit = h.defaultLimit
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	sessionID := c.Param("session_id")
	messages, err := h.chatService.History(c.Request.Context(), sessionID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conversation: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"total":      len(messages),
	})
}
