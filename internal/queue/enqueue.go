// Package queue implements a small delayed task queue on a redis sorted set.
// Tasks are scored by the time they become due; retries re-insert the task
// with a backoff score, and tasks that exhaust their attempts land on a
// per-kind dead letter list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task is one unit of asynchronous work.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
}

// envelope is the wire form of a task inside redis. Attempt counts travel
// with the task so redeliveries keep their history.
type envelope struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

// Enqueuer publishes tasks.
type Enqueuer struct {
	R        *redis.Client
	Prefix   string
	DedupTTL time.Duration
}

// Enqueue schedules the task. A task with an idempotency key is accepted at
// most once per deduplication window; duplicates are dropped silently.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}

	env := envelope{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = 10
	}

	if env.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		fresh, err := e.R.SetNX(ctx, dedupKey(e.Prefix, kind, env.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	key := queueKey(e.Prefix, kind)
	if err := e.R.ZAdd(ctx, key, redis.Z{Score: float64(env.AvailableAt), Member: raw}).Err(); err != nil {
		return err
	}
	if depth, err := e.R.ZCard(ctx, key).Result(); err == nil {
		QueueDepth.WithLabelValues(kind).Set(float64(depth))
	}
	return nil
}

// sanitizeKind rejects kinds with characters that would break key layout.
func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':':
		default:
			return ""
		}
	}
	return kind
}

func queueKey(prefix, kind string) string {
	if prefix == "" {
		return fmt.Sprintf("queue:%s", kind)
	}
	return fmt.Sprintf("%s:queue:%s", prefix, kind)
}

func processingKey(prefix, kind string) string {
	if prefix == "" {
		return fmt.Sprintf("queue:%s:processing", kind)
	}
	return fmt.Sprintf("%s:%s:processing", prefix, kind)
}

func dlqKey(prefix, kind string) string {
	if prefix == "" {
		return fmt.Sprintf("queue:%s:dlq", kind)
	}
	return fmt.Sprintf("%s:%s:dlq", prefix, kind)
}

func dedupKey(prefix, kind, key string) string {
	if prefix == "" {
		return fmt.Sprintf("queue:dedup:%s:%s", kind, key)
	}
	return fmt.Sprintf("%s:dedup:%s:%s", prefix, kind, key)
}
