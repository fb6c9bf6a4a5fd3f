package model

import "time"

// Order statuses. The overall status starts at placed and is free-form at the
// order level endpoint; completed is derived once every item reaches a
// terminal item status.
const (
	OrderStatusPlaced    = "placed"
	OrderStatusAccepted  = "accepted"
	OrderStatusPacked    = "packed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusRejected  = "rejected"
	OrderStatusCancelled = "cancelled"
	OrderStatusCompleted = "completed"
)

// ItemStatuses is the closed vocabulary accepted by the per-item status
// endpoint.
var ItemStatuses = []string{
	OrderStatusPlaced,
	OrderStatusAccepted,
	OrderStatusRejected,
	OrderStatusPacked,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ValidItemStatus reports whether s is in the recognised item status set.
func ValidItemStatus(s string) bool {
	for _, v := range ItemStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// TerminalItemStatus reports whether an item status counts toward order
// completion.
func TerminalItemStatus(s string) bool {
	return s == OrderStatusDelivered || s == OrderStatusRejected || s == OrderStatusCancelled
}

// Order is immutable once placed except for status transitions. It
// denormalizes price, product name, and customer contact so it stays valid
// even if the referenced product or user changes later.
type Order struct {
	ID            string         `json:"id"`
	TenantSlug    string         `json:"tenantSlug"`
	CustomerID    string         `json:"customerId"`
	CustomerName  string         `json:"customerName,omitempty"`
	CustomerPhone string         `json:"customerPhone,omitempty"`
	Items         []OrderItem    `json:"items"`
	Total         float64        `json:"total"`
	Address       Address        `json:"address"`
	Payment       Payment        `json:"payment"`
	Status        string         `json:"status"`
	History       []HistoryEntry `json:"history"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// OrderItem is one order line with its own fulfillment status.
type OrderItem struct {
	ProductID    string  `json:"productId"`
	Name         string  `json:"name"`
	PricePerUnit float64 `json:"pricePerUnit"`
	Qty          int     `json:"qty"`
	TenantSlug   string  `json:"tenantSlug"`
	FarmerID     string  `json:"farmerId,omitempty"`
	Status       string  `json:"itemStatus"`
	StatusNote   string  `json:"itemStatusNote,omitempty"`
}

// Payment is a provider-opaque sub-record.
type Payment struct {
	Method       string         `json:"method"`
	Status       string         `json:"status"`
	ProviderData map[string]any `json:"providerData,omitempty"`
}

// HistoryEntry is one line of the append-only audit log. Item-level updates
// share the log using the "item:<productId>:<status>" convention.
type HistoryEntry struct {
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
}
