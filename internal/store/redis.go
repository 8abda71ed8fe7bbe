package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "conversation:"

	// updateRetries bounds the optimistic retry loop in Update.
	updateRetries = 8
)

// RedisStore keeps one JSON value per conversation key. Update uses an
// optimistic WATCH/MULTI transaction retried on conflict, so concurrent
// turns for the same id cannot lose appends even across processes.
type RedisStore struct {
	rdb          *redis.Client
	systemPrompt string
	maxLen       int
	ttl          time.Duration
}

// NewRedisStore wraps an existing client. ttl of zero keeps records
// forever.
func NewRedisStore(rdb *redis.Client, systemPrompt string, maxLen int, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, systemPrompt: systemPrompt, maxLen: maxLen, ttl: ttl}
}

func redisKey(id string) string {
	if id == "" {
		id = "default"
	}
	return redisKeyPrefix + id
}

// Load fetches the record for id, returning a freshly initialized
// conversation when the key is absent.
func (s *RedisStore) Load(ctx context.Context, id string) (*Conversation, error) {
	data, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewConversation(s.systemPrompt), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return &c, nil
}

// Save replaces the record for id. Redis SET is atomic, so readers see
// either the previous or the new value, never a partial write.
func (s *RedisStore) Save(ctx context.Context, id string, c *Conversation) error {
	c.Trim(s.maxLen)
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, redisKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store: save %s: %w", id, err)
	}
	return nil
}

// Update applies fn under WATCH so a concurrent write to the same key
// aborts the transaction and the read-modify-write is retried on the
// fresh state.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Conversation) error) error {
	key := redisKey(id)

	txn := func(tx *redis.Tx) error {
		var c *Conversation
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			c = NewConversation(s.systemPrompt)
		case err != nil:
			return fmt.Errorf("store: load %s: %w", id, err)
		default:
			c = &Conversation{}
			if err := json.Unmarshal(data, c); err != nil {
				return fmt.Errorf("store: decode %s: %w", id, err)
			}
		}

		if err := fn(c); err != nil {
			return err
		}
		c.Trim(s.maxLen)
		out, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.rdb.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("store: update %s: too many write conflicts", id)
}
