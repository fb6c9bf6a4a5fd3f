// Package user exposes profile reads and address updates for existing users.
// Account creation lives in auth (self-registration) and apply (farmer
// provisioning).
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

// Service reads and updates user profiles.
type Service struct {
	users store.UserStore
}

// NewService constructs a Service.
func NewService(users store.UserStore) *Service {
	return &Service{users: users}
}

// Get returns a user by id. When tenantSlug is non-empty the user must belong
// to it.
func (s *Service) Get(ctx context.Context, tenantSlug, id string) (model.User, error) {
	if strings.TrimSpace(id) == "" {
		return model.User{}, common.ValidationError("user id is required")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, common.NotFoundError("user not found")
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	if tenantSlug != "" && u.TenantSlug != tenantSlug {
		return model.User{}, common.ForbiddenError(common.CodeTenantMismatch, "user belongs to a different village")
	}
	return u, nil
}

// UpdateProfile replaces the user's address. Only the user themselves or an
// admin may update a profile.
func (s *Service) UpdateProfile(ctx context.Context, tenantSlug, id string, addr model.Address) (model.User, error) {
	u, err := s.Get(ctx, tenantSlug, id)
	if err != nil {
		return model.User{}, err
	}
	actorID, _ := common.UserID(ctx)
	role, _ := common.Role(ctx)
	if actorID != u.ID && role != model.RoleAdmin {
		return model.User{}, common.ForbiddenError(common.CodeForbidden, "cannot update another user's profile")
	}
	updated, err := s.users.UpdateProfile(ctx, u.ID, addr)
	if err != nil {
		return model.User{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}
