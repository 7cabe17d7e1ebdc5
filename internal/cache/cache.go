// Package cache provides the exact-match answer cache and the
// intent-extraction cache on Redis, plus the operator invalidation used
// by the cache admin endpoint. All writes are best effort: a cache-write
// failure never fails the request that triggered it.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haesolkim/bokjibot/internal/queue"
)

const (
	answerKeyPrefix  = "chatbot:answers:"
	extractKeyPrefix = "extract:v2:"

	// DefaultAnswerTTL is the fixed expiry for exact-match entries.
	DefaultAnswerTTL = time.Hour
)

// AdminPatterns are the key patterns the cache admin call clears.
var AdminPatterns = []string{"extract:*", "summary:*", "chatbot:*"}

// Cache wraps the Redis-backed cache layers.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache with the given answer TTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultAnswerTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// answerKey normalizes the question and hashes it, so incidental
// whitespace and casing differences still hit.
func answerKey(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := md5.Sum([]byte(normalized))
	return answerKeyPrefix + hex.EncodeToString(sum[:])
}

// GetAnswer returns the cached full response for a question, if present.
func (c *Cache) GetAnswer(ctx context.Context, question string) (*queue.Result, bool, error) {
	data, err := c.client.Get(ctx, answerKey(question)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("answer cache read: %w", err)
	}

	var result queue.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("answer cache decode: %w", err)
	}
	return &result, true, nil
}

// SetAnswer stores the full response under the normalized question with
// the fixed TTL.
func (c *Cache) SetAnswer(ctx context.Context, question string, result queue.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("answer cache encode: %w", err)
	}
	if err := c.client.Set(ctx, answerKey(question), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("answer cache write: %w", err)
	}
	return nil
}

// GetExtraction returns a cached intent-extraction payload for a question.
func (c *Cache) GetExtraction(ctx context.Context, question string) ([]byte, bool) {
	sum := md5.Sum([]byte(question))
	data, err := c.client.Get(ctx, extractKeyPrefix+hex.EncodeToString(sum[:])).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetExtraction caches an intent-extraction payload.
func (c *Cache) SetExtraction(ctx context.Context, question string, payload []byte) error {
	sum := md5.Sum([]byte(question))
	return c.client.Set(ctx, extractKeyPrefix+hex.EncodeToString(sum[:]), payload, c.ttl).Err()
}

// Clear deletes every key matching the given patterns and returns how
// many entries were removed.
func (c *Cache) Clear(ctx context.Context, patterns []string) (int, error) {
	deleted := 0
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return deleted, fmt.Errorf("scanning %q: %w", pattern, err)
		}
		if len(keys) == 0 {
			continue
		}
		n, err := c.client.Del(ctx, keys...).Result()
		if err != nil {
			return deleted, fmt.Errorf("deleting %q keys: %w", pattern, err)
		}
		deleted += int(n)
	}
	return deleted, nil
}
