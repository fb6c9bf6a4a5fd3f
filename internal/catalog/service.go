package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/obs"
	"github.com/organoz/village-market/internal/photo"
	"github.com/organoz/village-market/internal/store"
	"github.com/organoz/village-market/internal/tenant"
)

// Service orchestrates product CRUD, photo lifecycle, and caching.
type Service struct {
	products store.ProductStore
	users    store.UserStore
	host     photo.Host
	cache    *Cache
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Products store.ProductStore
	Users    store.UserStore
	Host     photo.Host
	Cache    *Cache
	Logger   zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	host := cfg.Host
	if host == nil {
		host = photo.NopHost{}
	}
	return &Service{
		products: cfg.Products,
		users:    cfg.Users,
		host:     host,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}
}

// CreateInput carries the fields accepted when creating a product. Price and
// Stock accept JSON numbers or numeric strings.
type CreateInput struct {
	Name        string
	Description string
	Category    string
	Price       any
	Unit        string
	Stock       any
	Photos      []photo.UploadInput
}

// UpdateInput carries incremental product updates. Nil fields are unchanged.
type UpdateInput struct {
	Name           *string
	Description    *string
	Category       *string
	Price          any
	Unit           *string
	Stock          any
	AddPhotos      []photo.UploadInput
	RemovePublicID []string
}

// ProductView is a product enriched with its farmer's display name.
type ProductView struct {
	model.Product
	FarmerName string `json:"farmerName,omitempty"`
}

const listCacheKey = "catalog:list"

// Create uploads photos first, then writes the product record. A partial
// upload failure destroys the photos uploaded earlier in the same request and
// fails the whole create.
func (s *Service) Create(ctx context.Context, tenantSlug, farmerID string, in CreateInput) (model.Product, error) {
	if strings.TrimSpace(tenantSlug) == "" {
		return model.Product{}, common.NewAppError(common.CodeTenantRequired, "tenant is required", http.StatusBadRequest, nil)
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, common.ValidationError("name is required")
	}
	price, ok := common.CoerceFloat(in.Price)
	if !ok || price <= 0 {
		return model.Product{}, common.ValidationError("price must be a positive number")
	}
	stock, ok := common.CoerceInt(in.Stock)
	if !ok || stock < 0 {
		return model.Product{}, common.ValidationError("stock must be a non-negative integer")
	}

	photos, err := s.uploadAll(ctx, in.Photos)
	if err != nil {
		return model.Product{}, err
	}

	created, err := s.products.Create(ctx, model.Product{
		TenantSlug:   tenantSlug,
		FarmerID:     farmerID,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Category:     in.Category,
		PricePerUnit: price,
		Unit:         in.Unit,
		Stock:        stock,
		Photos:       photos,
	})
	if err != nil {
		s.destroyAll(ctx, photos, "create_rollback")
		return model.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx, tenantSlug)
	return created, nil
}

// uploadAll uploads every photo, destroying the earlier uploads when one
// fails so no orphaned assets remain on the host.
func (s *Service) uploadAll(ctx context.Context, inputs []photo.UploadInput) ([]model.Photo, error) {
	var uploaded []model.Photo
	for _, in := range inputs {
		up, err := s.host.Upload(ctx, in)
		if err != nil {
			s.destroyAll(ctx, uploaded, "upload_rollback")
			return nil, common.NewAppError("UPLOAD_FAILED", "photo upload failed", http.StatusBadGateway, err)
		}
		uploaded = append(uploaded, model.Photo{
			URL:       up.URL,
			PublicID:  up.PublicID,
			Latitude:  in.Latitude,
			Longitude: in.Longitude,
			Timestamp: up.Timestamp,
		})
	}
	return uploaded, nil
}

// destroyAll removes photos from the host, logging failures and continuing.
func (s *Service) destroyAll(ctx context.Context, photos []model.Photo, trigger string) {
	for _, p := range photos {
		result := "ok"
		if err := s.host.Destroy(ctx, p.PublicID); err != nil {
			result = "error"
			s.logger.Warn().Err(err).Str("public_id", p.PublicID).Str("trigger", trigger).Msg("photo destroy failed")
		}
		if obs.PhotoCleanupTotal != nil {
			obs.PhotoCleanupTotal.WithLabelValues(trigger, result).Inc()
		}
	}
}

// List returns the tenant's products, newest first, enriched with farmer
// names via one batched lookup. Results are cached per tenant.
func (s *Service) List(ctx context.Context, tenantSlug string) ([]ProductView, error) {
	if strings.TrimSpace(tenantSlug) == "" {
		return nil, common.NewAppError(common.CodeTenantRequired, "tenant is required", http.StatusBadRequest, nil)
	}
	key := tenant.PrefixKey(tenantSlug, listCacheKey)
	var cached []ProductView
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	products, err := s.products.List(ctx, store.ProductFilter{TenantSlug: tenantSlug})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	views, err := s.enrich(ctx, products)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, views); err != nil {
		s.logger.Debug().Err(err).Msg("catalog cache set failed")
	}
	return views, nil
}

// ListByFarmer returns one farmer's products within the tenant.
func (s *Service) ListByFarmer(ctx context.Context, tenantSlug, farmerID string) ([]ProductView, error) {
	if strings.TrimSpace(farmerID) == "" {
		return nil, common.ValidationError("farmer id is required")
	}
	products, err := s.products.List(ctx, store.ProductFilter{TenantSlug: tenantSlug, FarmerID: farmerID})
	if err != nil {
		return nil, fmt.Errorf("list products by farmer: %w", err)
	}
	return s.enrich(ctx, products)
}

func (s *Service) enrich(ctx context.Context, products []model.Product) ([]ProductView, error) {
	idSet := map[string]bool{}
	var farmerIDs []string
	for _, p := range products {
		if p.FarmerID != "" && !idSet[p.FarmerID] {
			idSet[p.FarmerID] = true
			farmerIDs = append(farmerIDs, p.FarmerID)
		}
	}
	names := map[string]string{}
	if len(farmerIDs) > 0 && s.users != nil {
		users, err := s.users.GetByIDs(ctx, farmerIDs)
		if err != nil {
			return nil, fmt.Errorf("lookup farmers: %w", err)
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, ProductView{Product: p, FarmerName: names[p.FarmerID]})
	}
	return views, nil
}

// Get returns a single product, enforcing tenant scope: a product from a
// different tenant is forbidden, not hidden.
func (s *Service) Get(ctx context.Context, tenantSlug, id string) (model.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Product{}, common.NotFoundError("product not found")
		}
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}
	if tenantSlug != "" && p.TenantSlug != tenantSlug {
		return model.Product{}, common.ForbiddenError(common.CodeTenantMismatch, "product belongs to a different village")
	}
	return p, nil
}

// Update applies incremental changes. New photos are appended after upload;
// removals destroy the host asset best-effort.
func (s *Service) Update(ctx context.Context, tenantSlug, actorID, actorRole, id string, in UpdateInput) (model.Product, error) {
	current, err := s.Get(ctx, tenantSlug, id)
	if err != nil {
		return model.Product{}, err
	}
	if err := s.authorize(current, actorID, actorRole); err != nil {
		return model.Product{}, err
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return model.Product{}, common.ValidationError("name cannot be empty")
		}
		current.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		current.Description = *in.Description
	}
	if in.Category != nil {
		current.Category = *in.Category
	}
	if in.Unit != nil {
		current.Unit = *in.Unit
	}
	if in.Price != nil {
		price, ok := common.CoerceFloat(in.Price)
		if !ok || price <= 0 {
			return model.Product{}, common.ValidationError("price must be a positive number")
		}
		current.PricePerUnit = price
	}
	if in.Stock != nil {
		stock, ok := common.CoerceInt(in.Stock)
		if !ok || stock < 0 {
			return model.Product{}, common.ValidationError("stock must be a non-negative integer")
		}
		current.Stock = stock
	}

	if len(in.RemovePublicID) > 0 {
		remove := map[string]bool{}
		for _, pid := range in.RemovePublicID {
			remove[pid] = true
		}
		var kept, dropped []model.Photo
		for _, p := range current.Photos {
			if remove[p.PublicID] {
				dropped = append(dropped, p)
			} else {
				kept = append(kept, p)
			}
		}
		s.destroyAll(ctx, dropped, "update_remove")
		current.Photos = kept
	}

	added, err := s.uploadAll(ctx, in.AddPhotos)
	if err != nil {
		return model.Product{}, err
	}
	current.Photos = append(current.Photos, added...)

	updated, err := s.products.Update(ctx, current)
	if err != nil {
		return model.Product{}, fmt.Errorf("update product: %w", err)
	}
	s.invalidate(ctx, current.TenantSlug)
	return updated, nil
}

// Delete removes the product after best-effort photo cleanup. A photo host
// failure never blocks the record deletion.
func (s *Service) Delete(ctx context.Context, tenantSlug, actorID, actorRole, id string) error {
	current, err := s.Get(ctx, tenantSlug, id)
	if err != nil {
		return err
	}
	if err := s.authorize(current, actorID, actorRole); err != nil {
		return err
	}
	s.destroyAll(ctx, current.Photos, "delete")
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.NotFoundError("product not found")
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidate(ctx, current.TenantSlug)
	return nil
}

func (s *Service) authorize(p model.Product, actorID, actorRole string) error {
	if actorRole == model.RoleAdmin {
		return nil
	}
	if actorID == "" || p.FarmerID != actorID {
		return common.ForbiddenError(common.CodeForbidden, "only the owning farmer may modify this product")
	}
	return nil
}

// SweepResult summarises a stale photo sweep.
type SweepResult struct {
	ProductsTouched int `json:"productsTouched"`
	PhotosDestroyed int `json:"photosDestroyed"`
}

// SweepStalePhotos destroys host assets for photos older than the cutoff and
// drops them from their products. Triggered on demand by an admin.
func (s *Service) SweepStalePhotos(ctx context.Context, tenantSlug string, olderThan time.Duration) (SweepResult, error) {
	if olderThan <= 0 {
		return SweepResult{}, common.ValidationError("olderThan must be positive")
	}
	cutoff := time.Now().Add(-olderThan)
	products, err := s.products.ListWithPhotosBefore(ctx, tenantSlug, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list stale photos: %w", err)
	}

	var result SweepResult
	for _, p := range products {
		var kept, stale []model.Photo
		for _, ph := range p.Photos {
			if ph.Timestamp.Before(cutoff) {
				stale = append(stale, ph)
			} else {
				kept = append(kept, ph)
			}
		}
		if len(stale) == 0 {
			continue
		}
		s.destroyAll(ctx, stale, "sweep")
		p.Photos = kept
		if _, err := s.products.Update(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str("product_id", p.ID).Msg("stale photo sweep update failed")
			continue
		}
		result.ProductsTouched++
		result.PhotosDestroyed += len(stale)
	}
	if result.ProductsTouched > 0 {
		s.invalidate(ctx, tenantSlug)
	}
	return result, nil
}

func (s *Service) invalidate(ctx context.Context, tenantSlug string) {
	s.cache.Invalidate(ctx, tenant.PrefixKey(tenantSlug, listCacheKey))
}
