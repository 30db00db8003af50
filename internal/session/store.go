package session

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrConflict is returned when an update lost every optimistic retry
var ErrConflict = errors.New("session: concurrent update conflict")

// UpdateFunc mutates a session context in place. Returning an error
// discards the change. It may run more than once per Update call.
type UpdateFunc func(c *Context) error

// Store keeps session contexts. Implementations serialize Update per id.
type Store interface {
	// Load returns a copy of the stored context and whether one exists.
	Load(ctx context.Context, id string) (*Context, bool, error)
	// Update applies fn to the stored context, or to a fresh one if the
	// session is unseen, and writes the result back atomically.
	Update(ctx context.Context, id string, fn UpdateFunc) error
}

const lockStripes = 64

// MemoryStore keeps contexts in process with sliding expiry
type MemoryStore struct {
	cache *cache.Cache
	locks [lockStripes]sync.Mutex
}

// NewMemoryStore creates a store whose entries expire after ttl without a
// write; expired entries are purged every cleanupInterval.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, cleanupInterval),
	}
}

// Load returns a copy of the session context
func (s *MemoryStore) Load(ctx context.Context, id string) (*Context, bool, error) {
	if x, found := s.cache.Get(id); found {
		return x.(*Context).Clone(), true, nil
	}
	return nil, false, nil
}

// Update runs fn under the session's lock and stores the result, which
// restarts the expiry window.
func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	c := NewContext()
	if x, found := s.cache.Get(id); found {
		c = x.(*Context).Clone()
	}
	if err := fn(c); err != nil {
		return err
	}
	s.cache.Set(id, c, cache.DefaultExpiration)
	return nil
}

// Len returns the number of live sessions
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}
