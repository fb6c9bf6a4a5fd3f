package model

import "time"

// Tenant is an isolated marketplace instance (a village). The slug is the
// authoritative scoping key: every tenant-scoped query filters on it.
type Tenant struct {
	ID           string        `json:"id"`
	Slug         string        `json:"slug"`
	Name         string        `json:"name"`
	Address      TenantAddress `json:"address"`
	AdminContact string        `json:"adminContact,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// TenantAddress holds contact metadata for a village.
type TenantAddress struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}
