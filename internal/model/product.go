package model

import "time"

// Product is an item for sale, owned by one farmer and scoped to one tenant
// via the denormalized slug. Stock must never go negative; the only writers
// are the conditional decrement and its compensating increment.
type Product struct {
	ID           string    `json:"id"`
	TenantSlug   string    `json:"tenantSlug"`
	FarmerID     string    `json:"farmerId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	PricePerUnit float64   `json:"pricePerUnit"`
	Unit         string    `json:"unit,omitempty"`
	Stock        int       `json:"stock"`
	Photos       []Photo   `json:"photos"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Photo is an attachment hosted on the external photo host. PublicID is the
// host-side identifier used for deletion.
type Photo struct {
	URL       string    `json:"url"`
	PublicID  string    `json:"publicId"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
