package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// jobQueueKey is the Redis list holding pending jobs.
	jobQueueKey = "chatbot:job_queue"

	// jobResultsKey is the Redis hash holding completed job results.
	jobResultsKey = "chatbot:job_results"
)

// RedisQueue implements Queue and ResultStore on a Redis list and hash.
// BLPOP gives atomic handoff across worker instances; a popped job belongs
// to exactly one consumer.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue appends a job to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.client.RPush(ctx, jobQueueKey, data).Err(); err != nil {
		return fmt.Errorf("pushing job to queue: %w", err)
	}
	return nil
}

// Dequeue blocks indefinitely until a job arrives. The zero timeout makes
// BLPOP wait server-side instead of busy polling.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, jobQueueKey).Result()
	if err != nil {
		return nil, fmt.Errorf("blocking pop failed: %w", err)
	}
	// BLPOP returns [key, value].
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply length %d", len(result))
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &job, nil
}

// SetResult stores the outcome for a job id.
func (q *RedisQueue) SetResult(ctx context.Context, jobID string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := q.client.HSet(ctx, jobResultsKey, jobID, data).Err(); err != nil {
		return fmt.Errorf("storing result: %w", err)
	}
	return nil
}

// GetResult returns the stored outcome, or ok=false while pending.
func (q *RedisQueue) GetResult(ctx context.Context, jobID string) (*Result, bool, error) {
	data, err := q.client.HGet(ctx, jobResultsKey, jobID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching result: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("unmarshaling result: %w", err)
	}
	return &result, true, nil
}

// Ping verifies the queue store is reachable. The process must not serve
// traffic without it.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Ensure RedisQueue implements both interfaces.
var (
	_ Queue       = (*RedisQueue)(nil)
	_ ResultStore = (*RedisQueue)(nil)
)
