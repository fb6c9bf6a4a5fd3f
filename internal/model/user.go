package model

import "time"

// Roles a user can hold within a tenant.
const (
	RoleFarmer = "farmer"
	RoleDealer = "dealer"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// User is a person scoped to exactly one tenant. Phone is the primary
// identifier within a tenant; (tenantSlug, phone) is unique.
type User struct {
	ID               string      `json:"id"`
	TenantSlug       string      `json:"tenantSlug"`
	Name             string      `json:"name"`
	Phone            string      `json:"phone"`
	Email            string      `json:"email,omitempty"`
	PasswordHash     string      `json:"-"`
	Role             string      `json:"role"`
	Address          Address     `json:"address"`
	FarmProfile      FarmProfile `json:"farmProfile"`
	TrustScore       int         `json:"trustScore"`
	ConsistencyScore int         `json:"consistencyScore"`
	ResetToken       string      `json:"-"`
	ResetExpires     *time.Time  `json:"-"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Address is a postal address shared by users and orders.
type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	Pincode string `json:"pincode,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// FarmProfile is only meaningful for farmers.
type FarmProfile struct {
	SoilType   string   `json:"soilType,omitempty"`
	FarmSizeHa float64  `json:"farmSizeHa,omitempty"`
	Crops      []string `json:"crops,omitempty"`
}
