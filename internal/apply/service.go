// Package apply implements the farmer application workflow: a public
// submission reviewed by an admin, whose approval provisions a farmer user.
package apply

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/events"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/obs"
	"github.com/organoz/village-market/internal/store"
)

// Service drives the application lifecycle. Decisions are single-shot: once
// an application leaves pending it can never be re-processed.
type Service struct {
	apps    store.ApplicationStore
	tenants store.TenantStore
	users   store.UserStore
	events  *events.Bus
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Applications store.ApplicationStore
	Tenants      store.TenantStore
	Users        store.UserStore
	Events       *events.Bus
	Logger       zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		apps:    cfg.Applications,
		tenants: cfg.Tenants,
		users:   cfg.Users,
		events:  cfg.Events,
		logger:  cfg.Logger,
	}
}

// emit publishes a decision event best-effort.
func (s *Service) emit(ctx context.Context, topic string, a model.FarmerApplication) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"applicationId": a.ID,
		"villageSlug":   a.VillageSlug,
		"email":         a.Email,
	}
	if a.AdminComment != "" {
		payload["message"] = a.AdminComment
	}
	if _, err := s.events.Emit(ctx, topic, a.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("application_id", a.ID).
			Msg("event notification failed")
	}
}

// SubmitInput is a public application to join a village as a farmer.
type SubmitInput struct {
	Name        string
	Phone       string
	Email       string
	VillageSlug string
	Address     model.Address
	FarmProfile model.FarmProfile
	Attachments []string
}

// Submit validates the request and stores a pending application.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (model.FarmerApplication, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.VillageSlug = strings.TrimSpace(in.VillageSlug)
	if in.Name == "" {
		return model.FarmerApplication{}, common.ValidationError("name is required")
	}
	if in.Phone == "" {
		return model.FarmerApplication{}, common.ValidationError("phone is required")
	}
	if in.VillageSlug == "" {
		return model.FarmerApplication{}, common.ValidationError("villageSlug is required")
	}
	if _, err := s.tenants.GetBySlug(ctx, in.VillageSlug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.FarmerApplication{}, common.NewAppError(common.CodeInvalidTenant,
				"village not found: "+in.VillageSlug, http.StatusBadRequest, nil)
		}
		return model.FarmerApplication{}, fmt.Errorf("lookup village: %w", err)
	}

	created, err := s.apps.Create(ctx, model.FarmerApplication{
		Name:        in.Name,
		Phone:       in.Phone,
		Email:       strings.TrimSpace(in.Email),
		VillageSlug: in.VillageSlug,
		Address:     in.Address,
		FarmProfile: in.FarmProfile,
		Attachments: in.Attachments,
		Status:      model.ApplicationPending,
	})
	if err != nil {
		return model.FarmerApplication{}, fmt.Errorf("create application: %w", err)
	}
	return created, nil
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Status      string
	VillageSlug string
}

// List returns applications matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]model.FarmerApplication, error) {
	apps, err := s.apps.List(ctx, store.ApplicationFilter{
		Status:      f.Status,
		VillageSlug: f.VillageSlug,
	})
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// Get returns one application by id.
func (s *Service) Get(ctx context.Context, id string) (model.FarmerApplication, error) {
	if strings.TrimSpace(id) == "" {
		return model.FarmerApplication{}, common.ValidationError("application id is required")
	}
	a, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.FarmerApplication{}, common.NotFoundError("application not found")
		}
		return model.FarmerApplication{}, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// ApproveResult carries the approved application, the provisioned farmer, and
// the initial password when the service generated one.
type ApproveResult struct {
	Application       model.FarmerApplication
	Farmer            model.User
	GeneratedPassword string
}

// Approve transitions a pending application to approved and creates the
// farmer user under the application's village. When password is empty a
// random one is generated and returned once in the result.
func (s *Service) Approve(ctx context.Context, id, password string) (ApproveResult, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return ApproveResult{}, err
	}
	if a.Status != model.ApplicationPending {
		return ApproveResult{}, common.ConflictError(common.CodeConflict, "application already "+a.Status)
	}

	generated := ""
	if strings.TrimSpace(password) == "" {
		generated, err = randomPassword()
		if err != nil {
			return ApproveResult{}, fmt.Errorf("generate password: %w", err)
		}
		password = generated
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return ApproveResult{}, fmt.Errorf("hash password: %w", err)
	}

	farmer, err := s.users.Create(ctx, model.User{
		TenantSlug:   a.VillageSlug,
		Name:         a.Name,
		Phone:        a.Phone,
		Email:        a.Email,
		PasswordHash: hash,
		Role:         model.RoleFarmer,
		Address:      a.Address,
		FarmProfile:  a.FarmProfile,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ApproveResult{}, common.ConflictError(common.CodeConflict,
				"a user with this phone already exists in "+a.VillageSlug)
		}
		return ApproveResult{}, fmt.Errorf("create farmer: %w", err)
	}

	a.Status = model.ApplicationApproved
	updated, err := s.apps.Update(ctx, a)
	if err != nil {
		// The farmer account exists but the application stayed pending. An
		// admin retry will hit the duplicate-phone conflict above.
		s.logger.Error().Err(err).Str("application_id", a.ID).Str("farmer_id", farmer.ID).
			Msg("application update failed after farmer creation")
		return ApproveResult{}, fmt.Errorf("mark application approved: %w", err)
	}
	if obs.ApplicationDecisionsTotal != nil {
		obs.ApplicationDecisionsTotal.WithLabelValues("approved").Inc()
	}
	s.emit(ctx, events.TopicApplicationApproved, updated)
	return ApproveResult{Application: updated, Farmer: farmer, GeneratedPassword: generated}, nil
}

// Reject transitions a pending application to rejected with an optional
// admin comment.
func (s *Service) Reject(ctx context.Context, id, comment string) (model.FarmerApplication, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return model.FarmerApplication{}, err
	}
	if a.Status != model.ApplicationPending {
		return model.FarmerApplication{}, common.ConflictError(common.CodeConflict, "application already "+a.Status)
	}
	a.Status = model.ApplicationRejected
	a.AdminComment = strings.TrimSpace(comment)
	updated, err := s.apps.Update(ctx, a)
	if err != nil {
		return model.FarmerApplication{}, fmt.Errorf("mark application rejected: %w", err)
	}
	if obs.ApplicationDecisionsTotal != nil {
		obs.ApplicationDecisionsTotal.WithLabelValues("rejected").Inc()
	}
	s.emit(ctx, events.TopicApplicationRejected, updated)
	return updated, nil
}

// randomPassword returns a 12-byte hex string.
func randomPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
