package model

import "time"

// Farmer application states. An application transitions away from pending
// exactly once.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// FarmerApplication is a public request to become a farmer in a village.
// Approval creates a User with RoleFarmer under the application's tenant.
type FarmerApplication struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone"`
	Email        string      `json:"email,omitempty"`
	VillageSlug  string      `json:"villageSlug"`
	Address      Address     `json:"address"`
	FarmProfile  FarmProfile `json:"farmProfile"`
	Attachments  []string    `json:"attachments,omitempty"`
	Status       string      `json:"status"`
	AdminComment string      `json:"adminComment,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}
