// Package events is a small in-process fan-out for domain events. Events are
// not persisted; side effects like email ride on best-effort notifiers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one emitted domain event.
type Event struct {
	Topic       string
	AggregateID string
	Payload     json.RawMessage
	OccurredAt  time.Time
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus fans emitted events out to downstream notifiers.
type Bus struct {
	Notifiers []Notifier
}

// Emit dispatches the event to every notifier. Failures are joined and
// returned to the caller, who typically just logs them; emitting is never
// transactional with the write that produced the event.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	if b == nil {
		return Event{}, nil
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}
	body, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}

	ev := Event{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     body,
		OccurredAt:  time.Now(),
	}
	var failures error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			failures = errors.Join(failures, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return ev, failures
}

// encodePayload normalises the payload to a JSON document. Raw byte and
// string payloads must already be valid JSON; anything else is marshalled.
func encodePayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		return json.Marshal(v)
	}

	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), raw...), nil
}
