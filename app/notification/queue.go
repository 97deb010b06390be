package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey        = "notifications:queue"
	deadLetterKey   = "notifications:dead"
	dedupeKeyPrefix = "notifications:dedupe:"
)

type RedisQueue struct {
	client    *redis.Client
	dedupeTTL time.Duration
}

func NewRedisQueue(client *redis.Client, dedupeTTL time.Duration) *RedisQueue {
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &RedisQueue{client: client, dedupeTTL: dedupeTTL}
}

func (q *RedisQueue) Enqueue(ctx context.Context, n Notification) (bool, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return false, err
	}

	if n.DedupeKey != "" {
		fresh, err := q.client.SetNX(ctx, dedupeKeyPrefix+n.DedupeKey, time.Now().UTC().Unix(), q.dedupeTTL).Result()
		if err != nil {
			return false, fmt.Errorf("dedupe notification: %w", err)
		}
		if !fresh {
			return false, nil
		}
	}

	if err := q.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		if n.DedupeKey != "" {
			_ = q.client.Del(ctx, dedupeKeyPrefix+n.DedupeKey).Err()
		}
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	return true, nil
}

// Dequeue blocks up to timeout. It returns nil, nil when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Notification, error) {
	res, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected queue reply of length %d", len(res))
	}

	var n Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		return nil, fmt.Errorf("decode queued notification: %w", err)
	}
	return &n, nil
}

type deadLetter struct {
	Notification Notification `json:"notification"`
	Reason       string       `json:"reason"`
	FailedAt     time.Time    `json:"failed_at"`
}

func (q *RedisQueue) DeadLetter(ctx context.Context, n Notification, reason string) error {
	payload, err := json.Marshal(deadLetter{Notification: n, Reason: reason, FailedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, deadLetterKey, payload).Err()
}
