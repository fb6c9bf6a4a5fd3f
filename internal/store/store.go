// Package store defines the persistence boundary. Every component receives
// explicitly constructed store clients by injection; there is no ambient
// process-wide handle. Implementations live in store/postgres, and tests
// substitute in-memory fakes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
)

var (
	// ErrNotFound indicates no record matched a well-formed identifier.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrInvalidID indicates an identifier that cannot be a uuid. It carries
	// the canonical 400 shape so a malformed id in the path never surfaces
	// as an internal error.
	ErrInvalidID = common.ValidationError("invalid id")
)

// TenantStore reads village records. Tenants are seeded by an operator and
// read-only in normal operation.
type TenantStore interface {
	GetBySlug(ctx context.Context, slug string) (model.Tenant, error)
	List(ctx context.Context) ([]model.Tenant, error)
	Create(ctx context.Context, t model.Tenant) (model.Tenant, error)
}

// UserStore persists users scoped by tenant slug.
type UserStore interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	GetByPhone(ctx context.Context, tenantSlug, phone string) (model.User, error)
	// GetByEmail scopes by tenant when tenantSlug is non-empty.
	GetByEmail(ctx context.Context, tenantSlug, email string) (model.User, error)
	GetByResetToken(ctx context.Context, email, token string) (model.User, error)
	UpdateProfile(ctx context.Context, id string, addr model.Address) (model.User, error)
	SetResetToken(ctx context.Context, id, token string, expires time.Time) error
	// UpdatePassword sets a new hash and clears any reset token.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	TenantSlug string
	FarmerID   string
	Limit      int
}

// ProductStore persists products. DecrementStock is the single atomic
// check-and-mutate behind the no-oversell guarantee: it must decrement only
// when current stock covers qty and the product belongs to tenantSlug, as one
// store operation, never a read-then-write pair.
type ProductStore interface {
	Create(ctx context.Context, p model.Product) (model.Product, error)
	GetByID(ctx context.Context, id string) (model.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)
	List(ctx context.Context, f ProductFilter) ([]model.Product, error)
	Update(ctx context.Context, p model.Product) (model.Product, error)
	Delete(ctx context.Context, id string) error
	// DecrementStock reports false (and mutates nothing) when stock is
	// insufficient or the product is not in tenantSlug.
	DecrementStock(ctx context.Context, id, tenantSlug string, qty int) (bool, error)
	// RestoreStock is the compensating increment. It is additive and safe to
	// retry; it never fails on a missing product beyond reporting the error.
	RestoreStock(ctx context.Context, id string, qty int) error
	// ListWithPhotosBefore returns products having at least one photo taken
	// before cutoff, for the on-demand stale photo sweep.
	ListWithPhotosBefore(ctx context.Context, tenantSlug string, cutoff time.Time) ([]model.Product, error)
}

// OrderFilter narrows order listings. FarmerID matches orders containing at
// least one item owned by that farmer.
type OrderFilter struct {
	TenantSlug string
	CustomerID string
	FarmerID   string
}

// OrderStore persists orders. Orders are never deleted.
type OrderStore interface {
	Create(ctx context.Context, o model.Order) (model.Order, error)
	GetByID(ctx context.Context, id string) (model.Order, error)
	List(ctx context.Context, f OrderFilter) ([]model.Order, error)
	// Update persists status, items, and history of an existing order.
	Update(ctx context.Context, o model.Order) (model.Order, error)
}

// ApplicationFilter narrows farmer application listings.
type ApplicationFilter struct {
	Status      string
	VillageSlug string
}

// ApplicationStore persists farmer applications.
type ApplicationStore interface {
	Create(ctx context.Context, a model.FarmerApplication) (model.FarmerApplication, error)
	GetByID(ctx context.Context, id string) (model.FarmerApplication, error)
	List(ctx context.Context, f ApplicationFilter) ([]model.FarmerApplication, error)
	Update(ctx context.Context, a model.FarmerApplication) (model.FarmerApplication, error)
}
