package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/organoz/village-market/internal/resilience"
)

// Worker consumes tasks of one kind. Leased tasks sit in a processing set
// scored by their visibility deadline so a crashed worker's tasks come back.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
}

// Run blocks until the context is cancelled, then waits for in-flight
// handlers to finish.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}

	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}

	qKey := queueKey(w.Prefix, kind)
	pKey := processingKey(w.Prefix, kind)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	reclaim := time.NewTicker(time.Second)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-reclaim.C:
			if err := w.reclaimExpired(ctx, pKey, qKey); err != nil {
				return err
			}
		default:
		}

		env, ok, err := w.popDue(ctx, qKey)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		env.Attempt++
		leased, err := json.Marshal(env)
		if err != nil {
			continue
		}
		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, pKey, redis.Z{Score: float64(deadline), Member: leased}).Err(); err != nil {
			return err
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(lease string, env envelope) {
			defer func() { <-sem }()
			defer wg.Done()
			jobCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			task := Task{Kind: kind, Payload: env.Payload, IdempotencyKey: env.Key}
			if err := w.Handler(jobCtx, task); err != nil {
				w.retryOrBury(jobCtx, qKey, pKey, lease, env, retryBase)
				return
			}
			w.finish(jobCtx, pKey, lease, env)
		}(string(leased), env)
	}
}

// popDue takes the lowest-scored task; tasks scheduled for the future are
// pushed back and the worker naps until they come due.
func (w Worker) popDue(ctx context.Context, qKey string) (envelope, bool, error) {
	res, err := w.R.ZPopMin(ctx, qKey, 1).Result()
	if err != nil {
		if err == redis.Nil {
			time.Sleep(100 * time.Millisecond)
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	if len(res) == 0 {
		time.Sleep(100 * time.Millisecond)
		return envelope{}, false, nil
	}
	raw, ok := res[0].Member.(string)
	if !ok {
		return envelope{}, false, nil
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return envelope{}, false, nil
	}

	now := time.Now().UnixNano()
	if env.AvailableAt > now {
		w.R.ZAdd(ctx, qKey, redis.Z{Score: float64(env.AvailableAt), Member: raw})
		nap := time.Duration(env.AvailableAt - now)
		if nap > time.Second {
			nap = time.Second
		}
		time.Sleep(nap)
		return envelope{}, false, nil
	}
	return env, true, nil
}

// retryOrBury reschedules a failed task with backoff, or moves it to the dead
// letter list once attempts are exhausted. Burying also clears the dedup key
// so the task can be submitted again deliberately.
func (w Worker) retryOrBury(ctx context.Context, qKey, pKey, lease string, env envelope, base time.Duration) {
	if lease != "" {
		_ = w.R.ZRem(ctx, pKey, lease)
	}
	if env.MaxAttempts > 0 && env.Attempt >= env.MaxAttempts {
		raw, err := json.Marshal(env)
		if err != nil {
			return
		}
		dlq := dlqKey(w.Prefix, env.Kind)
		_ = w.R.LPush(ctx, dlq, raw).Err()
		if env.Key != "" {
			_ = w.R.Del(ctx, dedupKey(w.Prefix, env.Kind, env.Key)).Err()
		}
		QueueProcessedTotal.WithLabelValues(env.Kind, "dead").Inc()
		if size, err := w.R.LLen(ctx, dlq).Result(); err == nil {
			QueueDLQSize.WithLabelValues(env.Kind).Set(float64(size))
		}
		return
	}

	QueueProcessedTotal.WithLabelValues(env.Kind, "retry").Inc()
	env.AvailableAt = time.Now().Add(resilience.Backoff(base, env.Attempt, w.RetryJitter)).UnixNano()
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, qKey, redis.Z{Score: float64(env.AvailableAt), Member: string(raw)}).Err()
}

func (w Worker) finish(ctx context.Context, pKey, lease string, env envelope) {
	if lease != "" {
		_ = w.R.ZRem(ctx, pKey, lease)
	}
	if env.Key != "" {
		_ = w.R.Del(ctx, dedupKey(w.Prefix, env.Kind, env.Key)).Err()
	}
	QueueProcessedTotal.WithLabelValues(env.Kind, "ok").Inc()
}

// reclaimExpired returns tasks whose visibility deadline passed to the main
// queue, making them immediately due.
func (w Worker) reclaimExpired(ctx context.Context, pKey, qKey string) error {
	now := float64(time.Now().UnixNano())
	expired, err := w.R.ZRangeByScore(ctx, pKey, &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatFloat(now, 'f', -1, 64)}).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, raw := range expired {
		env, err := decodeEnvelope(raw)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, pKey, raw).Err()
		env.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(env)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, qKey, redis.Z{Score: float64(env.AvailableAt), Member: encoded}).Err()
	}
	return nil
}
