package service

import (
	"context"
	"testing"
	"time"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/model"
	"shopassistant/internal/nlu"
	"shopassistant/internal/repository"
	"shopassistant/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func int64Ptr(v int64) *int64 { return &v }

func TestRecommendProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RecommendProducts(ctx, &model.ProductRecommendationRequest{Query: "giày"})
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7, 8, 12}, productIDs(resp.Products))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, []string{"giày"}, resp.Entities.Categories)

	limited, err := f.svc.RecommendProducts(ctx, &model.ProductRecommendationRequest{Query: "giày", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited.Products, 2)

	require.NoError(t, f.repo.UpsertUserPreference(ctx, &model.UserPreference{
		UserID:          5,
		PreferredBrands: model.JSONArray{"Converse"},
	}))
	ranked, err := f.svc.RecommendProducts(ctx, &model.ProductRecommendationRequest{Query: "giày", UserID: int64Ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(8), ranked.Products[0].ID)

	// Stateless: nothing is written to a session.
	assert.Equal(t, 0, f.store.Len())
}

func TestRecommendSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.UpsertUserPreference(ctx, &model.UserPreference{
		UserID:          7,
		SizePreferences: model.SizeMap{"giày": "42"},
	}))

	rec, err := f.svc.RecommendSize(ctx, &model.SizeRecommendationRequest{ProductID: 6, UserID: int64Ptr(7)})
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, rec.RecommendedSizes)
	assert.Equal(t, "Dựa trên lịch sử mua hàng, bạn thường chọn size 42 cho Giày", rec.Explanation)
	assert.Equal(t, "Dài chân: 26cm", rec.SizeGuide["42"])

	anon, err := f.svc.RecommendSize(ctx, &model.SizeRecommendationRequest{ProductID: 6})
	require.NoError(t, err)
	assert.Empty(t, anon.RecommendedSizes)

	_, err = f.svc.RecommendSize(ctx, &model.SizeRecommendationRequest{ProductID: 999})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.GetPreferences(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), empty.UserID)
	assert.NotNil(t, empty.PreferredBrands)
	assert.NotNil(t, empty.SizePreferences)

	updated, err := f.svc.UpdatePreferences(ctx, &model.UserPreference{
		UserID:          42,
		PreferredBrands: model.JSONArray{"Nike"},
		PriceRange:      model.PriceRange{Min: 100000, Max: 500000},
	})
	require.NoError(t, err)
	assert.Equal(t, model.JSONArray{"Nike"}, updated.PreferredBrands)
	assert.False(t, updated.UpdatedAt.IsZero())

	_, err = f.svc.UpdatePreferences(ctx, &model.UserPreference{
		UserID:     42,
		PriceRange: model.PriceRange{Min: 500000, Max: 100000},
	})
	assert.ErrorIs(t, err, ErrInvalidPreference)

	stored, err := f.svc.GetPreferences(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), stored.PriceRange.Max)
}

func TestPreferencesDisabled(t *testing.T) {
	lex := lexicon.Default()
	ex := nlu.NewExtractor(lex, 0)
	seed, err := repository.LoadSeed("")
	require.NoError(t, err)
	repo := repository.NewMemoryRepository(seed)
	mgr := session.NewManager(session.NewMemoryStore(time.Hour, time.Minute), lex, ex)
	svc := NewChatService(repo, repo, mgr, lex, ex, zap.NewNop())

	_, err = svc.GetPreferences(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPreferencesDisabled)
	_, err = svc.UpdatePreferences(context.Background(), &model.UserPreference{UserID: 1})
	assert.ErrorIs(t, err, ErrPreferencesDisabled)

	msgs, err := svc.History(context.Background(), "any", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, svc.RecordFeedback(context.Background(), &model.FeedbackRequest{SessionID: "any", ProductID: 1, Action: "click"}))
}

func TestHistoryAndFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.RecordFeedback(ctx, &model.FeedbackRequest{SessionID: "h-1", ProductID: 6, Action: "click"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	f.svc.Respond(ctx, ChatInput{Message: "tìm giày nike", SessionID: "h-1"})
	f.svc.Respond(ctx, ChatInput{Message: "màu trắng", SessionID: "h-1"})

	msgs, err := f.svc.History(ctx, "h-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "màu trắng", msgs[2].Content)
	assert.Equal(t, true, msgs[3].Metadata["is_follow_up"])

	last, err := f.svc.History(ctx, "h-1", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, model.MessageTypeAI, last[0].MessageType)

	assert.NoError(t, f.svc.RecordFeedback(ctx, &model.FeedbackRequest{SessionID: "h-1", ProductID: 6, Action: "add_to_cart"}))

	feedback, err := f.svc.Feedback(ctx, "h-1")
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, msgs[3].ID, feedback[0].MessageID)
	assert.Equal(t, int64(6), feedback[0].ProductID)
	assert.Equal(t, "add_to_cart", feedback[0].Action)

	none, err := f.svc.Feedback(ctx, "unseen")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, found, err := f.svc.SessionContext(ctx, "unseen")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, state)
	assert.Equal(t, 0, f.store.Len(), "lookup must not create the session")

	state, found, err = f.svc.SessionContext(ctx, "null")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, state)

	f.svc.Respond(ctx, ChatInput{Message: "xin chào", SessionID: "seen"})
	state, found, err = f.svc.SessionContext(ctx, "seen")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, nlu.IntentGreeting, state.LastIntent)
	assert.Empty(t, state.SearchHistory)
}
