package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "chat:session:"
	defaultMaxRetries = 10

	retryInitialInterval = 2 * time.Millisecond
	retryMaxInterval     = 100 * time.Millisecond
)

// RedisStore keeps contexts in Redis as JSON. Writes use WATCH/MULTI so two
// replicas handling the same session cannot drop each other's turn.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxRetries int
}

// NewRedisStore creates a store on an existing client. Each write resets
// the key's ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		prefix:     defaultKeyPrefix,
		ttl:        ttl,
		maxRetries: defaultMaxRetries,
	}
}

// Load returns the stored context
func (s *RedisStore) Load(ctx context.Context, id string) (*Context, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	c, err := decodeContext(data)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Update applies fn inside an optimistic transaction, retrying when another
// writer touched the key in between.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	key := s.key(id)

	txf := func(tx *redis.Tx) error {
		c := NewContext()
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to load session: %w", err)
		default:
			if c, err = decodeContext(data); err != nil {
				return err
			}
		}

		if err := fn(c); err != nil {
			return err
		}

		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	err := backoff.Retry(func() error {
		err := s.client.Watch(ctx, txf, key)
		if err == nil || errors.Is(err, redis.TxFailedErr) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(s.retryPolicy(), ctx))
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// retryPolicy allows maxRetries attempts with jittered exponential delays
// between them.
func (s *RedisStore) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	retries := s.maxRetries - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func decodeContext(data []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	c.normalize()
	return &c, nil
}
