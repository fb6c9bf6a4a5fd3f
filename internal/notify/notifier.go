package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/events"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(_ context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt))
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "customerEmail", "farmerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderPlaced:
		return "Your order has been placed"
	case events.TopicOrderCompleted:
		return "Your order is complete"
	case events.TopicApplicationApproved:
		return "Your farmer application was approved"
	case events.TopicApplicationRejected:
		return "About your farmer application"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("<p>Event %s at %s.</p>", topic, occurred.Format(time.RFC3339))
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("<p>Order: %s</p>", orderID)
	}
	if village, ok := payload["villageSlug"].(string); ok && village != "" {
		summary += fmt.Sprintf("<p>Village: %s</p>", village)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "<p>" + note + "</p>"
	}
	return summary
}
