// Package session tracks per-session dialogue state: the previous turn's
// intent and entities, a bounded message flow and a bounded search history.
package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/nlu"
)

const (
	DefaultFlowLimit    = 10
	DefaultHistoryLimit = 5

	maxIDLength = 128
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// ValidID reports whether id can address a session. Clients that lost their
// id tend to send "null" or "undefined"; those are treated as no session.
func ValidID(id string) bool {
	switch id {
	case "", "null", "undefined", "None":
		return false
	}
	return len(id) <= maxIDLength && idPattern.MatchString(id)
}

// Turn is the outcome of resolving one message against its session
type Turn struct {
	Intent     nlu.Intent
	Entities   nlu.Entities
	IsFollowUp bool
}

// Manager implements the dialogue-state operations on top of a Store
type Manager struct {
	store        Store
	extractor    *nlu.Extractor
	markers      []string
	flowLimit    int
	historyLimit int
	now          func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLimits overrides the flow and search history caps
func WithLimits(flow, history int) Option {
	return func(m *Manager) {
		if flow > 0 {
			m.flowLimit = flow
		}
		if history > 0 {
			m.historyLimit = history
		}
	}
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager. The extractor is used to judge whether a
// short message carries search attributes.
func NewManager(store Store, lex *lexicon.Lexicon, extractor *nlu.Extractor, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		extractor:    extractor,
		markers:      lex.FollowUpMarkers,
		flowLimit:    DefaultFlowLimit,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetContext returns the session's context, or an empty one if the session
// is unseen. The empty context is not stored.
func (m *Manager) GetContext(ctx context.Context, id string) (*Context, error) {
	c, _, err := m.Lookup(ctx, id)
	return c, err
}

// Lookup is GetContext that also reports whether the session exists
func (m *Manager) Lookup(ctx context.Context, id string) (*Context, bool, error) {
	c, found, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get context: %w", err)
	}
	if !found {
		return NewContext(), false, nil
	}
	return c, true, nil
}

// UpdateContext records a processed message
func (m *Manager) UpdateContext(ctx context.Context, id string, intent nlu.Intent, entities nlu.Entities, message string) error {
	err := m.store.Update(ctx, id, func(c *Context) error {
		m.record(c, intent, entities, message)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update context: %w", err)
	}
	return nil
}

// MergeEntitiesWithContext fills the empty fields of current from the
// previous turn's entities
func (m *Manager) MergeEntitiesWithContext(ctx context.Context, id string, current nlu.Entities) (nlu.Entities, error) {
	c, err := m.GetContext(ctx, id)
	if err != nil {
		return current, err
	}
	return MergeEntities(c.LastEntities, current), nil
}

// IsFollowUpQuestion reports whether message continues the previous search
func (m *Manager) IsFollowUpQuestion(ctx context.Context, id string, message string) (bool, error) {
	c, err := m.GetContext(ctx, id)
	if err != nil {
		return false, err
	}
	return m.isFollowUp(c, message), nil
}

// ResolveTurn does follow-up detection, entity merging and the context
// update for one message as a single atomic step on the session.
func (m *Manager) ResolveTurn(ctx context.Context, id string, message string, intent nlu.Intent, entities nlu.Entities) (Turn, error) {
	var turn Turn
	err := m.store.Update(ctx, id, func(c *Context) error {
		turn = Turn{Intent: intent, Entities: entities.Clone()}
		if m.isFollowUp(c, message) {
			turn.IsFollowUp = true
			turn.Entities = MergeEntities(c.LastEntities, entities)
			if turn.Intent == nlu.IntentGeneral {
				turn.Intent = nlu.IntentProductSearch
			}
		}
		m.record(c, turn.Intent, turn.Entities, message)
		return nil
	})
	if err != nil {
		return Turn{Intent: intent, Entities: entities}, fmt.Errorf("failed to resolve turn: %w", err)
	}
	return turn, nil
}

// MergeEntities copies colors, brands, categories and sizes from prev into
// the fields that are empty in current, and the price range if current has
// none. Fields with a value are never touched.
func MergeEntities(prev, current nlu.Entities) nlu.Entities {
	merged := current.Clone()
	if len(merged.Colors) == 0 && len(prev.Colors) > 0 {
		merged.Colors = append([]string{}, prev.Colors...)
	}
	if len(merged.Brands) == 0 && len(prev.Brands) > 0 {
		merged.Brands = append([]string{}, prev.Brands...)
	}
	if len(merged.Categories) == 0 && len(prev.Categories) > 0 {
		merged.Categories = append([]string{}, prev.Categories...)
	}
	if len(merged.Sizes) == 0 && len(prev.Sizes) > 0 {
		merged.Sizes = append([]string{}, prev.Sizes...)
	}
	if merged.PriceRange == nil && prev.PriceRange != nil {
		pr := *prev.PriceRange
		merged.PriceRange = &pr
	}
	return merged
}

func (m *Manager) isFollowUp(c *Context, message string) bool {
	if c.LastIntent != nlu.IntentProductSearch {
		return false
	}
	folded := lexicon.Fold(message)
	for _, marker := range m.markers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	if len(strings.Fields(folded)) <= 3 {
		return m.extractor.Extract(message).HasSearchAttributes()
	}
	return false
}

func (m *Manager) record(c *Context, intent nlu.Intent, entities nlu.Entities, message string) {
	now := m.now()

	c.LastIntent = intent
	c.LastEntities = entities.Clone()
	c.UpdatedAt = now

	c.ConversationFlow = append(c.ConversationFlow, FlowRecord{
		Message:   message,
		Intent:    intent,
		Entities:  entities.Clone(),
		Timestamp: now,
	})
	if n := len(c.ConversationFlow); n > m.flowLimit {
		c.ConversationFlow = append([]FlowRecord{}, c.ConversationFlow[n-m.flowLimit:]...)
	}

	if intent != nlu.IntentProductSearch {
		return
	}
	c.SearchHistory = append(c.SearchHistory, SearchRecord{
		Query:     message,
		Entities:  entities.Clone(),
		Timestamp: now,
	})
	if n := len(c.SearchHistory); n > m.historyLimit {
		c.SearchHistory = append([]SearchRecord{}, c.SearchHistory[n-m.historyLimit:]...)
	}
}
