package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThreadStore keeps the message history of assistant threads.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]ChatMessage, error)
	Append(ctx context.Context, threadID string, messages ...ChatMessage) error
}

// RedisThreadStore stores each thread as a Redis list under thread:<id>.
type RedisThreadStore struct {
	redis      redis.Cmdable
	ttl        time.Duration
	maxHistory int
}

// NewRedisThreadStore creates a thread store. A zero ttl keeps threads forever.
// maxHistory caps the messages kept per thread, dropping the oldest; zero
// keeps them all.
func NewRedisThreadStore(rdb redis.Cmdable, ttl time.Duration, maxHistory int) *RedisThreadStore {
	return &RedisThreadStore{redis: rdb, ttl: ttl, maxHistory: maxHistory}
}

func threadKey(threadID string) string {
	return fmt.Sprintf("thread:%s", threadID)
}

// Load returns the thread's messages, oldest first. Unknown threads are empty.
func (s *RedisThreadStore) Load(ctx context.Context, threadID string) ([]ChatMessage, error) {
	items, err := s.redis.LRange(ctx, threadKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}

	messages := make([]ChatMessage, 0, len(items))
	for _, item := range items {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode thread %s: %w", threadID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Append adds messages to the end of the thread, trims it to the history cap
// and refreshes its expiry.
func (s *RedisThreadStore) Append(ctx context.Context, threadID string, messages ...ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode thread message: %w", err)
		}
		values = append(values, data)
	}

	key := threadKey(threadID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.maxHistory > 0 {
		pipe.LTrim(ctx, key, int64(-s.maxHistory), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to thread %s: %w", threadID, err)
	}
	return nil
}
