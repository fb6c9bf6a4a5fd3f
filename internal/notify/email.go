// Package notify carries transactional email over the redis task queue. The
// API side enqueues; the worker process decodes tasks and hands them to a
// concrete mailer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/queue"
)

// EmailTaskKind is the queue kind for outbound email.
const EmailTaskKind = "email"

type emailTask struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// QueueSender implements common.EmailSender by enqueuing the message instead
// of delivering it inline. Delivery happens in the worker process.
type QueueSender struct {
	Queue  queue.Enqueuer
	Logger zerolog.Logger
}

// Send enqueues one email task. Enqueue failures are reported to the caller;
// callers treat email as fire-and-forget and log rather than fail the request.
func (s QueueSender) Send(to, subject, html string) error {
	payload, err := json.Marshal(emailTask{To: to, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("notify: encode email task: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Queue.Enqueue(ctx, queue.Task{
		Kind:           EmailTaskKind,
		Payload:        payload,
		IdempotencyKey: uuid.NewString(),
		MaxAttempts:    6,
	})
}

// NewEmailWorker builds the queue worker that delivers email tasks through
// the given mailer.
func NewEmailWorker(client *redis.Client, prefix string, mailer common.EmailSender, logger zerolog.Logger) queue.Worker {
	return queue.Worker{
		R:                 client,
		Prefix:            prefix,
		Kind:              EmailTaskKind,
		Concurrency:       4,
		VisibilityTimeout: 30 * time.Second,
		RetryBase:         time.Second,
		RetryJitter:       0.2,
		Handler: func(_ context.Context, task queue.Task) error {
			var t emailTask
			if err := json.Unmarshal(task.Payload, &t); err != nil {
				// Malformed payloads never become deliverable; drop them.
				logger.Error().Err(err).Msg("discard undecodable email task")
				return nil
			}
			if err := mailer.Send(t.To, t.Subject, t.HTML); err != nil {
				return fmt.Errorf("notify: deliver email to %s: %w", t.To, err)
			}
			logger.Debug().Str("to", t.To).Str("subject", t.Subject).Msg("email delivered")
			return nil
		},
	}
}
