// Package reconcile provides the durable retry path for reward settlement.
// When applying a reward fails after its verification has already
// committed, the payout is parked on a Redis list and a worker replays it
// until it lands or exhausts its attempts, at which point the job moves to
// a dead-letter list for manual reconciliation.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job is one pending reward application.
type Job struct {
	OperationID string    `json:"operationId"`
	OperatorID  string    `json:"operatorId"`
	XP          int       `json:"xp"`
	Tokens      float64   `json:"tokens,omitempty"`
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// Config configures the Redis queue.
type Config struct {
	RedisURL  string // Redis URL (defaults to redis://localhost:6379/0)
	KeyPrefix string // key prefix for queue keys (defaults to "opnet:reconcile:")
}

// Queue is a Redis-backed job queue with a pending list and a dead-letter
// list. Jobs travel as JSON strings.
type Queue struct {
	client *redis.Client
	prefix string
}

// NewQueue connects to Redis and verifies the connection.
func NewQueue(ctx context.Context, config Config) (*Queue, error) {
	redisURL := config.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "opnet:reconcile:"
	}

	return &Queue{client: client, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) pendingKey() string { return q.prefix + "pending" }
func (q *Queue) deadKey() string    { return q.prefix + "dead" }

// Enqueue appends a job to the pending list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.RPush(ctx, q.pendingKey(), string(payload)).Err()
}

// EnqueueReward implements reward.Enqueuer for first-time failures.
func (q *Queue) EnqueueReward(ctx context.Context, operationID, operatorID string, xp int, tokens float64) error {
	return q.Enqueue(ctx, Job{
		OperationID: operationID,
		OperatorID:  operatorID,
		XP:          xp,
		Tokens:      tokens,
		Attempt:     1,
		EnqueuedAt:  time.Now().UTC(),
	})
}

// Dequeue removes and returns the next pending job, blocking up to timeout.
// Returns nil with no error when the timeout elapses without a job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.pendingKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Park moves a job to the dead-letter list for manual reconciliation.
func (q *Queue) Park(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.RPush(ctx, q.deadKey(), string(payload)).Err()
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	depth, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(depth), nil
}

// DeadDepth returns the number of dead-lettered jobs.
func (q *Queue) DeadDepth(ctx context.Context) (int, error) {
	depth, err := q.client.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(depth), nil
}
