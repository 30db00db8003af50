package handler

import (
	"errors"
	"net/http"
	"strconv"

	"shopassistant/internal/model"
	"shopassistant/internal/repository"
	"shopassistant/internal/service"

	"github.com/gin-gonic/gin"
)

// RecommendHandler serves product and size recommendations and the user
// preferences that drive them
type RecommendHandler struct {
	chatService *service.ChatService
}

// NewRecommendHandler creates a new recommendation handler
func NewRecommendHandler(chatService *service.ChatService) *RecommendHandler {
	return &RecommendHandler{
		chatService: chatService,
	}
}

// Products handles POST /api/v1/recommendations/products
func (h *RecommendHandler) Products(c *gin.Context) {
	var req model.ProductRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	response, err := h.chatService.RecommendProducts(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Recommendation failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Size handles POST /api/v1/recommendations/size
func (h *RecommendHandler) Size(c *gin.Context) {
	var req model.SizeRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	rec, err := h.chatService.RecommendSize(c.Request.Context(), &req)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Size recommendation failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetPreferences handles GET /api/v1/preferences/:user_id
func (h *RecommendHandler) GetPreferences(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	pref, err := h.chatService.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		preferenceError(c, err)
		return
	}

	c.JSON(http.StatusOK, pref)
}

// UpdatePreferences handles PUT /api/v1/preferences/:user_id
func (h *RecommendHandler) UpdatePreferences(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var pref model.UserPreference
	if err := c.ShouldBindJSON(&pref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	pref.UserID = userID

	stored, err := h.chatService.UpdatePreferences(c.Request.Context(), &pref)
	if err != nil {
		preferenceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stored)
}

func userIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return userID, true
}

func preferenceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPreference):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPreferencesDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to access preferences: " + err.Error()})
	}
}
