package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopassistant/internal/model"
	"shopassistant/internal/repository"
	"shopassistant/internal/session"
)

// MaxRecommendationLimit caps explicit recommendation requests
const MaxRecommendationLimit = 50

var (
	// ErrPreferencesDisabled is returned when no preference store is configured
	ErrPreferencesDisabled = errors.New("user preferences are not enabled")
	// ErrInvalidPreference is returned for a preference update that cannot be stored
	ErrInvalidPreference = errors.New("invalid preference")
)

// RecommendProducts runs a stateless search over a free-text query and ranks
// the result by the user's preferences
func (s *ChatService) RecommendProducts(ctx context.Context, req *model.ProductRecommendationRequest) (*model.ProductRecommendationResponse, error) {
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = s.resultLimit
	}
	if limit > MaxRecommendationLimit {
		limit = MaxRecommendationLimit
	}

	entities := s.extractor.Extract(req.Query)
	products, err := s.catalog.SearchProducts(ctx, repository.PredicateFromEntities(entities), limit)
	if err != nil {
		return nil, err
	}
	if req.UserID != nil {
		products = s.rankForUser(ctx, *req.UserID, products)
	}

	return &model.ProductRecommendationResponse{
		Products: products,
		Total:    len(products),
		Entities: entities,
		Took:     time.Since(start).Milliseconds(),
	}, nil
}

// RecommendSize advises on sizes for one product
func (s *ChatService) RecommendSize(ctx context.Context, req *model.SizeRecommendationRequest) (*model.SizeRecommendation, error) {
	product, err := s.catalog.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	var pref *model.UserPreference
	if req.UserID != nil {
		pref = s.preferenceFor(ctx, *req.UserID)
	}
	return s.sizes.Recommend(product, pref), nil
}

// GetPreferences returns the user's preferences, or an empty set when none
// are stored
func (s *ChatService) GetPreferences(ctx context.Context, userID int64) (*model.UserPreference, error) {
	if s.prefs == nil {
		return nil, ErrPreferencesDisabled
	}
	pref, err := s.prefs.GetUserPreference(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.UserPreference{
			UserID:              userID,
			PreferredBrands:     model.JSONArray{},
			PreferredCategories: model.JSONArray{},
			SizePreferences:     model.SizeMap{},
			StylePreferences:    model.JSONArray{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return pref, nil
}

// UpdatePreferences replaces the user's preferences
func (s *ChatService) UpdatePreferences(ctx context.Context, pref *model.UserPreference) (*model.UserPreference, error) {
	if s.prefs == nil {
		return nil, ErrPreferencesDisabled
	}
	if pref.PriceRange.Max != 0 && pref.PriceRange.Min > pref.PriceRange.Max {
		return nil, fmt.Errorf("%w: price min %d exceeds max %d", ErrInvalidPreference, pref.PriceRange.Min, pref.PriceRange.Max)
	}
	if err := s.prefs.UpsertUserPreference(ctx, pref); err != nil {
		return nil, err
	}
	return s.GetPreferences(ctx, pref.UserID)
}

// History returns the stored messages of a session, oldest first
func (s *ChatService) History(ctx context.Context, sessionID string, limit int) ([]model.ConversationMessage, error) {
	if s.convLog == nil {
		return []model.ConversationMessage{}, nil
	}
	return s.convLog.ListConversation(ctx, sessionID, limit)
}

// RecordFeedback logs what the user did with a suggested product
func (s *ChatService) RecordFeedback(ctx context.Context, req *model.FeedbackRequest) error {
	if s.convLog == nil {
		return nil
	}
	return s.convLog.LogFeedback(ctx, req.SessionID, req.ProductID, req.Action)
}

// Feedback returns what the user did with suggested products in a session
func (s *ChatService) Feedback(ctx context.Context, sessionID string) ([]model.Feedback, error) {
	if s.convLog == nil {
		return []model.Feedback{}, nil
	}
	return s.convLog.ListFeedback(ctx, sessionID)
}

// SessionContext returns the dialogue state of a session and whether it
// exists. It never creates the session.
func (s *ChatService) SessionContext(ctx context.Context, sessionID string) (*session.Context, bool, error) {
	if !session.ValidID(sessionID) {
		return nil, false, nil
	}
	return s.sessions.Lookup(ctx, sessionID)
}
