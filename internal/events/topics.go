package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderPlaced         = "order.placed"
	TopicOrderCompleted      = "order.completed"
	TopicApplicationApproved = "application.approved"
	TopicApplicationRejected = "application.rejected"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderPlaced,
		TopicOrderCompleted,
		TopicApplicationApproved,
		TopicApplicationRejected,
	}
}
