package session

import (
	"time"

	"shopassistant/internal/nlu"
)

// FlowRecord is one processed message
type FlowRecord struct {
	Message   string       `json:"message"`
	Intent    nlu.Intent   `json:"intent"`
	Entities  nlu.Entities `json:"entities"`
	Timestamp time.Time    `json:"timestamp"`
}

// SearchRecord is one product search turn
type SearchRecord struct {
	Query     string       `json:"query"`
	Entities  nlu.Entities `json:"entities"`
	Timestamp time.Time    `json:"timestamp"`
}

// Context is the dialogue state of one session. An empty LastIntent means
// no message has been recorded yet.
type Context struct {
	LastIntent       nlu.Intent     `json:"last_intent"`
	LastEntities     nlu.Entities   `json:"last_entities"`
	ConversationFlow []FlowRecord   `json:"conversation_flow"`
	SearchHistory    []SearchRecord `json:"search_history"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewContext returns the state of a session nobody has written to
func NewContext() *Context {
	return &Context{
		LastEntities:     nlu.NewEntities(),
		ConversationFlow: []FlowRecord{},
		SearchHistory:    []SearchRecord{},
	}
}

// Clone returns a deep copy
func (c *Context) Clone() *Context {
	out := &Context{
		LastIntent:       c.LastIntent,
		LastEntities:     c.LastEntities.Clone(),
		ConversationFlow: make([]FlowRecord, len(c.ConversationFlow)),
		SearchHistory:    make([]SearchRecord, len(c.SearchHistory)),
		UpdatedAt:        c.UpdatedAt,
	}
	for i, f := range c.ConversationFlow {
		f.Entities = f.Entities.Clone()
		out.ConversationFlow[i] = f
	}
	for i, s := range c.SearchHistory {
		s.Entities = s.Entities.Clone()
		out.SearchHistory[i] = s
	}
	return out
}

// normalize repairs nil collections after decoding
func (c *Context) normalize() {
	c.LastEntities.Normalize()
	if c.ConversationFlow == nil {
		c.ConversationFlow = []FlowRecord{}
	}
	if c.SearchHistory == nil {
		c.SearchHistory = []SearchRecord{}
	}
	for i := range c.ConversationFlow {
		c.ConversationFlow[i].Entities.Normalize()
	}
	for i := range c.SearchHistory {
		c.SearchHistory[i].Entities.Normalize()
	}
}
