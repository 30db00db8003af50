package service

import (
	"context"
	"errors"
	"time"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/metrics"
	"shopassistant/internal/model"
	"shopassistant/internal/nlu"
	"shopassistant/internal/repository"
	"shopassistant/internal/session"

	"go.uber.org/zap"
)

// DefaultResultLimit caps the products returned by one search
const DefaultResultLimit = 10

// Catalog is the product lookup the dialogue policy searches
type Catalog interface {
	SearchProducts(ctx context.Context, pred repository.Predicate, limit int) ([]model.Product, error)
	FindByPriceRange(ctx context.Context, min, max int64, limit int) ([]model.Product, error)
	GetProductByID(ctx context.Context, id int64) (*model.Product, error)
}

// KnowledgeBase answers general questions
type KnowledgeBase interface {
	FindAnswer(ctx context.Context, message string) (*model.KnowledgeEntry, error)
}

// PreferenceStore holds per-user shopping preferences
type PreferenceStore interface {
	GetUserPreference(ctx context.Context, userID int64) (*model.UserPreference, error)
	UpsertUserPreference(ctx context.Context, pref *model.UserPreference) error
}

// ConversationLog persists exchanges and feedback
type ConversationLog interface {
	LogExchange(ctx context.Context, ex model.Exchange) error
	ListConversation(ctx context.Context, sessionID string, limit int) ([]model.ConversationMessage, error)
	LogFeedback(ctx context.Context, sessionID string, productID int64, action string) error
	ListFeedback(ctx context.Context, sessionID string) ([]model.Feedback, error)
}

// ChatInput is one inbound message
type ChatInput struct {
	Message   string
	SessionID string
	User      *model.UserProfile
}

// ChatService runs the dialogue pipeline: classification, extraction,
// session resolution, dispatch and reply generation.
type ChatService struct {
	catalog    Catalog
	knowledge  KnowledgeBase
	prefs      PreferenceStore
	convLog    ConversationLog
	sessions   *session.Manager
	lex        *lexicon.Lexicon
	classifier *nlu.Classifier
	extractor  *nlu.Extractor
	ranker     *Ranker
	sizes      *SizeAdvisor
	logger     *zap.Logger

	resultLimit int
	goAsync     func(func())
}

// ChatOption configures a ChatService
type ChatOption func(*ChatService)

// WithResultLimit overrides DefaultResultLimit
func WithResultLimit(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.resultLimit = n
		}
	}
}

// WithPreferences enables preference ranking and size advice
func WithPreferences(p PreferenceStore) ChatOption {
	return func(s *ChatService) {
		s.prefs = p
	}
}

// WithConversationLog enables exchange persistence
func WithConversationLog(l ConversationLog) ChatOption {
	return func(s *ChatService) {
		s.convLog = l
	}
}

// NewChatService creates a new chat service
func NewChatService(
	catalog Catalog,
	knowledge KnowledgeBase,
	sessions *session.Manager,
	lex *lexicon.Lexicon,
	extractor *nlu.Extractor,
	logger *zap.Logger,
	opts ...ChatOption,
) *ChatService {
	s := &ChatService{
		catalog:     catalog,
		knowledge:   knowledge,
		sessions:    sessions,
		lex:         lex,
		classifier:  nlu.NewClassifier(lex),
		extractor:   extractor,
		ranker:      NewRanker(),
		sizes:       NewSizeAdvisor(lex),
		logger:      logger.With(zap.String("component", "chat")),
		resultLimit: DefaultResultLimit,
		goAsync:     func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Respond produces the reply to one message. It never fails: lookup errors
// become apology replies and an internal fault becomes a generic failure
// reply.
func (s *ChatService) Respond(ctx context.Context, in ChatInput) (reply *model.ChatReply) {
	start := time.Now()
	intent := nlu.IntentGeneral

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while generating reply",
				zap.Any("panic", r),
				zap.String("session_id", in.SessionID),
				zap.String("intent", string(intent)),
				zap.Stack("stack"),
			)
			metrics.ChatFallbacks.WithLabelValues(metrics.ReasonPanic).Inc()
			reply = failureReply(intent)
		}
		took := time.Since(start)
		metrics.ChatMessages.WithLabelValues(string(reply.Metadata.Intent)).Inc()
		metrics.ChatRespondDuration.WithLabelValues(string(reply.Metadata.Intent)).Observe(took.Seconds())
		s.logExchange(in, reply, took)
	}()

	intent = s.classifier.Classify(in.Message)
	entities := s.extractor.Extract(in.Message)
	isFollowUp := false

	if session.ValidID(in.SessionID) {
		turn, err := s.sessions.ResolveTurn(ctx, in.SessionID, in.Message, intent, entities)
		if err != nil {
			s.logger.Warn("session unavailable, answering statelessly",
				zap.String("session_id", in.SessionID), zap.Error(err))
			metrics.ChatFallbacks.WithLabelValues(metrics.ReasonSession).Inc()
		}
		intent, entities, isFollowUp = turn.Intent, turn.Entities, turn.IsFollowUp
		if isFollowUp {
			metrics.ChatFollowUps.Inc()
		}
	}

	reply = newReply(intent, entities, isFollowUp)

	switch intent {
	case nlu.IntentProductSearch:
		s.handleProductSearch(ctx, in, reply, entities)
	case nlu.IntentSizeHelp:
		s.handleSizeHelp(in, reply, entities)
	case nlu.IntentOrderHelp:
		s.handleOrderHelp(in, reply)
	case nlu.IntentGreeting:
		s.handleGreeting(in, reply)
	case nlu.IntentPriceInquiry:
		s.handlePriceInquiry(ctx, in, reply, entities)
	default:
		s.handleGeneral(ctx, in, reply)
	}

	s.logger.Debug("reply generated",
		zap.String("session_id", in.SessionID),
		zap.String("intent", string(intent)),
		zap.Bool("follow_up", isFollowUp),
		zap.Int("products", len(reply.SuggestedProducts)),
	)
	return reply
}

func newReply(intent nlu.Intent, entities nlu.Entities, isFollowUp bool) *model.ChatReply {
	entities.Normalize()
	return &model.ChatReply{
		SuggestedProducts: []model.Product{},
		QuickReplies:      []string{},
		ActionsTaken:      []model.Action{},
		Metadata: model.ReplyMetadata{
			Intent:     intent,
			Entities:   entities,
			IsFollowUp: isFollowUp,
		},
	}
}

// rankForUser moves the user's preferred brands and categories first. A
// missing or unreadable profile leaves the order unchanged.
func (s *ChatService) rankForUser(ctx context.Context, userID int64, products []model.Product) []model.Product {
	pref := s.preferenceFor(ctx, userID)
	if pref == nil {
		return products
	}
	return s.ranker.Rank(products, pref)
}

func (s *ChatService) preferenceFor(ctx context.Context, userID int64) *model.UserPreference {
	if s.prefs == nil || userID == 0 {
		return nil
	}
	pref, err := s.prefs.GetUserPreference(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to load user preference", zap.Int64("user_id", userID), zap.Error(err))
			metrics.ChatFallbacks.WithLabelValues(metrics.ReasonPreference).Inc()
		}
		return nil
	}
	return pref
}

// logExchange persists the exchange in the background. Stateless requests
// are not logged.
func (s *ChatService) logExchange(in ChatInput, reply *model.ChatReply, took time.Duration) {
	if s.convLog == nil || reply == nil || !session.ValidID(in.SessionID) {
		return
	}
	ex := model.Exchange{
		SessionID:   in.SessionID,
		UserMessage: in.Message,
		Reply:       reply,
		Took:        took,
	}
	if in.User != nil && in.User.ID != 0 {
		id := in.User.ID
		ex.UserID = &id
	}
	s.goAsync(func() {
		if err := s.convLog.LogExchange(context.Background(), ex); err != nil {
			s.logger.Warn("failed to log exchange", zap.String("session_id", ex.SessionID), zap.Error(err))
			metrics.ChatFallbacks.WithLabelValues(metrics.ReasonConvLog).Inc()
		}
	})
}

func userID(u *model.UserProfile) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
