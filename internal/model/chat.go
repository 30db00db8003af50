package model

import (
	"encoding/json"
	"time"

	"shopassistant/internal/nlu"
)

// Action types recorded in a reply's action log
const (
	ActionProductSearch = "product_search"
	ActionSizeHelp      = "size_help"
	ActionOrderHelp     = "order_help"
	ActionPriceInquiry  = "price_inquiry"
	ActionGreeting      = "greeting"
	ActionGeneral       = "general"
)

// UserProfile is the caller-supplied identity of the person chatting
type UserProfile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// ChatRequest represents a chat message request
type ChatRequest struct {
	Message   string       `json:"message" binding:"required"`
	SessionID *string      `json:"session_id,omitempty"`
	User      *UserProfile `json:"user,omitempty"`
}

// ChatResponse is a reply plus the session it belongs to
type ChatResponse struct {
	*ChatReply
	SessionID string `json:"session_id"`
}

// ChatReply is what the assistant answers to one message
type ChatReply struct {
	Message           string        `json:"message"`
	SuggestedProducts []Product     `json:"suggested_products"`
	QuickReplies      []string      `json:"quick_replies"`
	ActionsTaken      []Action      `json:"actions_taken"`
	Metadata          ReplyMetadata `json:"metadata"`
}

// ReplyMetadata describes how the message was understood
type ReplyMetadata struct {
	Intent     nlu.Intent   `json:"intent"`
	Entities   nlu.Entities `json:"entities"`
	IsFollowUp bool         `json:"is_follow_up"`
}

// Action is one entry of the reply's action log. Which optional fields are
// emitted depends on Type.
type Action struct {
	Type             string          `json:"type"`
	Query            string          `json:"query"`
	ResultsCount     int             `json:"results_count"`
	FiltersApplied   *nlu.Entities   `json:"filters_applied,omitempty"`
	DetectedSizes    []string        `json:"detected_sizes,omitempty"`
	PriceRange       *nlu.PriceRange `json:"price_range,omitempty"`
	KnowledgeMatched bool            `json:"knowledge_matched,omitempty"`
}

// MarshalJSON emits the fixed field set of each action type
func (a Action) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"type":  a.Type,
		"query": a.Query,
	}
	switch a.Type {
	case ActionProductSearch:
		out["results_count"] = a.ResultsCount
		out["filters_applied"] = a.FiltersApplied
	case ActionSizeHelp:
		sizes := a.DetectedSizes
		if sizes == nil {
			sizes = []string{}
		}
		out["detected_sizes"] = sizes
	case ActionPriceInquiry:
		out["price_range"] = a.PriceRange
		out["results_count"] = a.ResultsCount
	case ActionGeneral:
		out["knowledge_matched"] = a.KnowledgeMatched
	}
	return json.Marshal(out)
}

// ConversationMessage is one stored message of a chat session
type ConversationMessage struct {
	ID          int64     `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	MessageType string    `json:"message_type" db:"message_type"`
	Content     string    `json:"content" db:"content"`
	Metadata    JSONMap   `json:"metadata" db:"metadata"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// Message types of a stored conversation
const (
	MessageTypeUser = "user"
	MessageTypeAI   = "ai"
)

// Exchange is one user message and the reply it got, as persisted
type Exchange struct {
	SessionID   string
	UserID      *int64
	UserMessage string
	Reply       *ChatReply
	Took        time.Duration
}

// ProductRecommendationRequest asks for products matching a free-text query
type ProductRecommendationRequest struct {
	Query  string `json:"query" binding:"required"`
	Limit  int    `json:"limit"`
	UserID *int64 `json:"user_id,omitempty"`
}

// ProductRecommendationResponse lists recommended products
type ProductRecommendationResponse struct {
	Products []Product    `json:"products"`
	Total    int          `json:"total"`
	Entities nlu.Entities `json:"entities"`
	Took     int64        `json:"took_ms"`
}

// SizeRecommendationRequest asks for size advice on one product
type SizeRecommendationRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	UserID    *int64 `json:"user_id,omitempty"`
}

// SizeRecommendation is the advice for one product
type SizeRecommendation struct {
	ProductID        int64             `json:"product_id"`
	RecommendedSizes []string          `json:"recommended_sizes"`
	AvailableSizes   []string          `json:"available_sizes"`
	Explanation      string            `json:"explanation"`
	SizeGuide        map[string]string `json:"size_guide"`
}

// FeedbackRequest records what a user did with a suggested product
type FeedbackRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	ProductID int64  `json:"product_id" binding:"required"`
	Action    string `json:"action" binding:"required"` // click, add_to_cart, view_details
}

// Feedback is one recorded feedback event, attached to the AI message that
// was the session's latest reply at the time
type Feedback struct {
	MessageID int64     `json:"message_id" db:"message_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Action    string    `json:"action" db:"action"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// FeedbackListResponse lists a session's feedback, oldest first
type FeedbackListResponse struct {
	SessionID string     `json:"session_id"`
	Feedback  []Feedback `json:"feedback"`
	Total     int        `json:"total"`
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
