package repository

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the YAML layout of an in-memory catalog
type Seed struct {
	Products  []model.Product        `yaml:"products"`
	Knowledge []model.KnowledgeEntry `yaml:"knowledge"`
}

// MemoryRepository serves the catalog, knowledge base, preferences and
// conversation log from process memory. It backs local runs and tests.
type MemoryRepository struct {
	products  []model.Product
	knowledge []model.KnowledgeEntry

	mu          sync.RWMutex
	preferences map[int64]model.UserPreference
	messages    map[string][]model.ConversationMessage
	feedback    map[string][]model.Feedback
	nextID      int64
	now         func() time.Time
}

// NewMemoryRepository creates a repository over the given seed
func NewMemoryRepository(seed Seed) *MemoryRepository {
	knowledge := append([]model.KnowledgeEntry(nil), seed.Knowledge...)
	sort.SliceStable(knowledge, func(i, j int) bool {
		if knowledge[i].KnowledgeType != knowledge[j].KnowledgeType {
			return knowledge[i].KnowledgeType < knowledge[j].KnowledgeType
		}
		return knowledge[i].Question < knowledge[j].Question
	})
	products := append([]model.Product(nil), seed.Products...)
	sort.SliceStable(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	return &MemoryRepository{
		products:    products,
		knowledge:   knowledge,
		preferences: make(map[int64]model.UserPreference),
		messages:    make(map[string][]model.ConversationMessage),
		feedback:    make(map[string][]model.Feedback),
		now:         time.Now,
	}
}

// LoadSeed reads a seed file, or the built-in demo catalog when path is empty
func LoadSeed(path string) (Seed, error) {
	data := defaultSeed
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return Seed{}, fmt.Errorf("failed to read catalog seed: %w", err)
		}
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("failed to decode catalog seed: %w", err)
	}
	return seed, nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// SearchProducts returns up to limit products matching pred
func (r *MemoryRepository) SearchProducts(ctx context.Context, pred Predicate, limit int) ([]model.Product, error) {
	out := []model.Product{}
	for i := range r.products {
		if len(out) >= limit {
			break
		}
		if pred.Matches(&r.products[i]) {
			out = append(out, r.products[i])
		}
	}
	return out, nil
}

// FindByPriceRange returns up to limit products priced within [min, max]
func (r *MemoryRepository) FindByPriceRange(ctx context.Context, min, max int64, limit int) ([]model.Product, error) {
	out := []model.Product{}
	for _, p := range r.products {
		if len(out) >= limit {
			break
		}
		if p.Price >= min && p.Price <= max {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetProductByID retrieves a single product
func (r *MemoryRepository) GetProductByID(ctx context.Context, id int64) (*model.Product, error) {
	for _, p := range r.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// BrandTitles lists the distinct brand names of the catalog
func (r *MemoryRepository) BrandTitles(ctx context.Context) ([]string, error) {
	return r.distinct(func(p model.Product) string { return p.BrandName }), nil
}

// CategoryTitles lists the distinct category titles of the catalog
func (r *MemoryRepository) CategoryTitles(ctx context.Context) ([]string, error) {
	return r.distinct(func(p model.Product) string { return p.CategoryName }), nil
}

func (r *MemoryRepository) distinct(get func(model.Product) string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, p := range r.products {
		v := get(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// FindAnswer applies the same matching rules as the Postgres knowledge base
func (r *MemoryRepository) FindAnswer(ctx context.Context, message string) (*model.KnowledgeEntry, error) {
	lowered := lexicon.Fold(message)
	if lowered == "" {
		return nil, nil
	}
	for _, k := range r.knowledge {
		if !k.IsActive {
			continue
		}
		if strings.Contains(lexicon.Fold(k.Question), lowered) {
			return &k, nil
		}
		for _, kw := range k.Keywords {
			kw = lexicon.Fold(kw)
			if kw == lowered || (kw != "" && strings.Contains(lowered, kw)) {
				return &k, nil
			}
		}
	}
	return nil, nil
}

// GetUserPreference returns a user's stored preferences
func (r *MemoryRepository) GetUserPreference(ctx context.Context, userID int64) (*model.UserPreference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pref, ok := r.preferences[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &pref, nil
}

// UpsertUserPreference creates or replaces a user's preferences
func (r *MemoryRepository) UpsertUserPreference(ctx context.Context, pref *model.UserPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *pref
	stored.UpdatedAt = r.now()
	r.preferences[pref.UserID] = stored
	return nil
}

// LogExchange appends the user message and the reply to the session log
func (r *MemoryRepository) LogExchange(ctx context.Context, ex model.Exchange) error {
	meta, err := replyMetadata(ex)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.nextID++
	user := model.ConversationMessage{
		ID: r.nextID, SessionID: ex.SessionID, MessageType: model.MessageTypeUser,
		Content: ex.UserMessage, Metadata: model.JSONMap{}, Timestamp: now,
	}
	r.nextID++
	reply := model.ConversationMessage{
		ID: r.nextID, SessionID: ex.SessionID, MessageType: model.MessageTypeAI,
		Content: ex.Reply.Message, Metadata: meta, Timestamp: now,
	}
	r.messages[ex.SessionID] = append(r.messages[ex.SessionID], user, reply)
	return nil
}

// ListConversation returns the most recent messages of a session, oldest
// first
func (r *MemoryRepository) ListConversation(ctx context.Context, sessionID string, limit int) ([]model.ConversationMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]model.ConversationMessage{}, all...), nil
}

// LogFeedback records feedback against the session's latest reply
func (r *MemoryRepository) LogFeedback(ctx context.Context, sessionID string, productID int64, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[sessionID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].MessageType != model.MessageTypeAI {
			continue
		}
		r.feedback[sessionID] = append(r.feedback[sessionID], model.Feedback{
			MessageID: msgs[i].ID,
			SessionID: sessionID,
			ProductID: productID,
			Action:    action,
			Timestamp: r.now(),
		})
		return nil
	}
	return ErrNotFound
}

// ListFeedback returns the feedback recorded for a session, oldest first
func (r *MemoryRepository) ListFeedback(ctx context.Context, sessionID string) ([]model.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Feedback{}, r.feedback[sessionID]...), nil
}
