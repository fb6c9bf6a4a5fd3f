package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/queue"
)

func newQueueClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTaskRoundTrip(t *testing.T) {
	client := newQueueClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := queue.Enqueuer{R: client, Prefix: "test"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{
		Kind:           "demo",
		Payload:        []byte("payload"),
		IdempotencyKey: "1",
	}))

	delivered := make(chan []byte, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "test",
		Kind:              "demo",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			delivered <- task.Payload
			cancel()
			return nil
		},
	}
	go func() { _ = worker.Run(ctx) }()

	select {
	case payload := <-delivered:
		require.Equal(t, []byte("payload"), payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for payload")
	}
}

func TestFailedTaskIsRetried(t *testing.T) {
	client := newQueueClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := queue.Enqueuer{R: client, Prefix: "retry"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{
		Kind:           "demo",
		Payload:        []byte("retry"),
		IdempotencyKey: "r1",
		MaxAttempts:    3,
	}))

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "retry",
		Kind:              "demo",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		Handler: func(ctx context.Context, task queue.Task) error {
			if attempts.Add(1) == 1 {
				return errors.New("transient failure")
			}
			cancel()
			return nil
		},
	}
	go func() { _ = worker.Run(ctx) }()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not retry in time")
	}
	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestExhaustedTaskLandsInDLQ(t *testing.T) {
	client := newQueueClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := queue.Enqueuer{R: client, Prefix: "dead"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{
		Kind:           "email",
		Payload:        []byte("body"),
		IdempotencyKey: "d1",
		MaxAttempts:    2,
	}))

	worker := queue.Worker{
		R:                 client,
		Prefix:            "dead",
		Kind:              "email",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		Handler: func(context.Context, queue.Task) error {
			return errors.New("permanent failure")
		},
	}
	go func() { _ = worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		size, err := client.LLen(context.Background(), "dead:email:dlq").Result()
		return err == nil && size == 1
	}, 2*time.Second, 20*time.Millisecond)
}
