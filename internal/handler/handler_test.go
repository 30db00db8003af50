package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/model"
	"shopassistant/internal/nlu"
	"shopassistant/internal/repository"
	"shopassistant/internal/service"
	"shopassistant/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryRepository) {
	t.Helper()
	seed, err := repository.LoadSeed("")
	require.NoError(t, err)
	repo := repository.NewMemoryRepository(seed)

	lex := lexicon.Default()
	ex := nlu.NewExtractor(lex, 0)
	mgr := session.NewManager(session.NewMemoryStore(time.Hour, time.Minute), lex, ex)
	svc := service.NewChatService(repo, repo, mgr, lex, ex, zap.NewNop(),
		service.WithPreferences(repo),
		service.WithConversationLog(repo),
	)

	chatHandler := NewChatHandler(svc, 50, 200)
	recommendHandler := NewRecommendHandler(svc)
	feedbackHandler := NewFeedbackHandler(svc)

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/chat", chatHandler.Chat)
	api.GET("/sessions/:session_id/context", chatHandler.SessionContext)
	api.GET("/conversations/:session_id", chatHandler.Conversation)
	api.POST("/recommendations/products", recommendHandler.Products)
	api.POST("/recommendations/size", recommendHandler.Size)
	api.GET("/preferences/:user_id", recommendHandler.GetPreferences)
	api.PUT("/preferences/:user_id", recommendHandler.UpdatePreferences)
	api.POST("/feedback", feedbackHandler.Submit)
	api.GET("/feedback/:session_id", feedbackHandler.List)
	return router, repo
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestChat_MintsSessionID(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/chat", gin.H{"message": "tìm giày nike"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	sessionID, _ := body["session_id"].(string)
	_, err := uuid.Parse(sessionID)
	assert.NoError(t, err)
	assert.Equal(t, "product_search", body["metadata"].(map[string]interface{})["intent"])
	assert.NotEmpty(t, body["suggested_products"])
	assert.NotEmpty(t, body["message"])
}

func TestChat_KeepsSessionAcrossTurns(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/chat", gin.H{"message": "tìm giày nike", "session_id": "web-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "web-1", decode(t, w)["session_id"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/chat", gin.H{"message": "còn màu đen không", "session_id": "web-1"})
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode(t, w)["metadata"].(map[string]interface{})
	assert.Equal(t, true, meta["is_follow_up"])
	assert.Equal(t, []interface{}{"nike"}, meta["entities"].(map[string]interface{})["brands"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/sessions/web-1/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)
	assert.Equal(t, "product_search", state["last_intent"])
	assert.Len(t, state["conversation_flow"], 2)
}

func TestChat_MalformedSessionPassedThrough(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/chat", gin.H{"message": "xin chào", "session_id": "null"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", decode(t, w)["session_id"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/sessions/null/context", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_InvalidRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/chat", gin.H{"session_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Invalid request")

	w = doJSON(t, router, http.MethodPost, "/api/v1/chat", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionContext_Unseen(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/sessions/never-used/context", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversation(t *testing.T) {
	router, repo := newTestRouter(t)
	ctx := context.Background()
	for _, msg := range []string{"xin chào", "tìm giày"} {
		require.NoError(t, repo.LogExchange(ctx, model.Exchange{
			SessionID:   "c-1",
			UserMessage: msg,
			Reply:       &model.ChatReply{Message: "ok", Metadata: model.ReplyMetadata{Intent: nlu.IntentGeneral}},
		}))
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/conversations/c-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "c-1", body["session_id"])
	assert.Equal(t, float64(4), body["total"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/c-1?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/c-1?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/empty", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["messages"])
}

func TestRecommendProducts(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/recommendations/products", gin.H{"query": "giày", "limit": 2})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["products"], 2)

	w = doJSON(t, router, http.MethodPost, "/api/v1/recommendations/products", gin.H{"limit": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendSize(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/recommendations/size", gin.H{"product_id": 1})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["product_id"])
	assert.Contains(t, body["size_guide"], "M")

	w = doJSON(t, router, http.MethodPost, "/api/v1/recommendations/size", gin.H{"product_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/recommendations/size", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreferences(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/preferences/12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(12), body["user_id"])
	assert.Equal(t, []interface{}{}, body["preferred_brands"])

	w = doJSON(t, router, http.MethodPut, "/api/v1/preferences/12", gin.H{
		"user_id":          999,
		"preferred_brands": []string{"Nike"},
		"size_preferences": map[string]string{"giày": "42"},
		"price_range":      gin.H{"min": 100000, "max": 900000},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, float64(12), body["user_id"])
	assert.Equal(t, []interface{}{"Nike"}, body["preferred_brands"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/preferences/12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"giày": "42"}, decode(t, w)["size_preferences"])

	w = doJSON(t, router, http.MethodPut, "/api/v1/preferences/12", gin.H{
		"price_range": gin.H{"min": 900000, "max": 100000},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/preferences/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/v1/preferences/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback(t *testing.T) {
	router, repo := newTestRouter(t)

	req := gin.H{"session_id": "f-1", "product_id": 6, "action": "add_to_cart"}
	w := doJSON(t, router, http.MethodPost, "/api/v1/feedback", req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, repo.LogExchange(context.Background(), model.Exchange{
		SessionID:   "f-1",
		UserMessage: "tìm giày",
		Reply:       &model.ChatReply{Message: "ok"},
	}))

	w = doJSON(t, router, http.MethodPost, "/api/v1/feedback", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/feedback/f-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])
	entry := body["feedback"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(6), entry["product_id"])
	assert.Equal(t, "add_to_cart", entry["action"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/feedback/none", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["feedback"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/feedback", gin.H{"session_id": "f-1", "product_id": 6, "action": "contact"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "add_to_cart")

	w = doJSON(t, router, http.MethodPost, "/api/v1/feedback", gin.H{"session_id": "f-1", "action": "click"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
