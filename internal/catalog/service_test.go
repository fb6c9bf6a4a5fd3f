package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/photo"
	"github.com/organoz/village-market/internal/store"
)

type fakeProductStore struct {
	products map[string]model.Product
	nextID   int
	listErr  error
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{products: map[string]model.Product{}}
}

func (f *fakeProductStore) Create(_ context.Context, p model.Product) (model.Product, error) {
	f.nextID++
	p.ID = fmt.Sprintf("prod-%d", f.nextID)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeProductStore) GetByID(_ context.Context, id string) (model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return model.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductStore) GetByIDs(_ context.Context, ids []string) ([]model.Product, error) {
	var out []model.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductStore) List(_ context.Context, filter store.ProductFilter) ([]model.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Product
	for _, p := range f.products {
		if filter.TenantSlug != "" && p.TenantSlug != filter.TenantSlug {
			continue
		}
		if filter.FarmerID != "" && p.FarmerID != filter.FarmerID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductStore) Update(_ context.Context, p model.Product) (model.Product, error) {
	if _, ok := f.products[p.ID]; !ok {
		return model.Product{}, store.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeProductStore) Delete(_ context.Context, id string) error {
	if _, ok := f.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

func (f *fakeProductStore) DecrementStock(_ context.Context, id, tenantSlug string, qty int) (bool, error) {
	p, ok := f.products[id]
	if !ok || p.TenantSlug != tenantSlug || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	f.products[id] = p
	return true, nil
}

func (f *fakeProductStore) RestoreStock(_ context.Context, id string, qty int) error {
	p, ok := f.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock += qty
	f.products[id] = p
	return nil
}

func (f *fakeProductStore) ListWithPhotosBefore(_ context.Context, tenantSlug string, cutoff time.Time) ([]model.Product, error) {
	var out []model.Product
	for _, p := range f.products {
		if tenantSlug != "" && p.TenantSlug != tenantSlug {
			continue
		}
		for _, ph := range p.Photos {
			if ph.Timestamp.Before(cutoff) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

type fakeUserStore struct {
	users map[string]model.User
}

func (f *fakeUserStore) Create(_ context.Context, u model.User) (model.User, error) { return u, nil }
func (f *fakeUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}
func (f *fakeUserStore) GetByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
func (f *fakeUserStore) GetByPhone(context.Context, string, string) (model.User, error) {
	return model.User{}, store.ErrNotFound
}
func (f *fakeUserStore) GetByEmail(context.Context, string, string) (model.User, error) {
	return model.User{}, store.ErrNotFound
}
func (f *fakeUserStore) GetByResetToken(context.Context, string, string) (model.User, error) {
	return model.User{}, store.ErrNotFound
}
func (f *fakeUserStore) UpdateProfile(_ context.Context, id string, _ model.Address) (model.User, error) {
	return model.User{}, store.ErrNotFound
}
func (f *fakeUserStore) SetResetToken(context.Context, string, string, time.Time) error { return nil }
func (f *fakeUserStore) UpdatePassword(context.Context, string, string) error           { return nil }

func newCatalogService(products *fakeProductStore, host photo.Host, cache *Cache) *Service {
	return NewService(ServiceConfig{
		Products: products,
		Users: &fakeUserStore{users: map[string]model.User{
			"farmer-1": {ID: "farmer-1", Name: "Asha Devi"},
		}},
		Host:   host,
		Cache:  cache,
		Logger: zerolog.Nop(),
	})
}

func TestCreateCoercesStringNumbers(t *testing.T) {
	products := newFakeProductStore()
	svc := newCatalogService(products, &photo.InMemoryHost{}, nil)

	created, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name:  "Tomatoes",
		Price: "25.50",
		Stock: "40",
		Unit:  "kg",
	})
	require.NoError(t, err)
	require.Equal(t, 25.5, created.PricePerUnit)
	require.Equal(t, 40, created.Stock)
	require.Equal(t, "sundarpur", created.TenantSlug)
	require.Equal(t, "farmer-1", created.FarmerID)
}

func TestCreateRejectsBadNumbers(t *testing.T) {
	svc := newCatalogService(newFakeProductStore(), &photo.InMemoryHost{}, nil)

	_, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: "free", Stock: 1,
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)

	_, err = svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 2.5,
	})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestCreatePartialUploadFailureDestroysEarlierUploads(t *testing.T) {
	products := newFakeProductStore()
	host := &photo.InMemoryHost{FailAfter: 2}
	svc := newCatalogService(products, host, nil)

	_, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 5,
		Photos: []photo.UploadInput{
			{FileName: "a.jpg", Body: strings.NewReader("a")},
			{FileName: "b.jpg", Body: strings.NewReader("b")},
			{FileName: "c.jpg", Body: strings.NewReader("c")},
		},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "UPLOAD_FAILED", appErr.Code)

	// The two successful uploads were rolled back; nothing persisted.
	require.Len(t, host.Destroyed, 2)
	require.Empty(t, products.products)
}

func TestGetTenantMismatchIsForbidden(t *testing.T) {
	products := newFakeProductStore()
	svc := newCatalogService(products, &photo.InMemoryHost{}, nil)
	created, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 5,
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "rampur", created.ID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeTenantMismatch, appErr.Code)
}

func TestDeleteDestroysPhotosBestEffort(t *testing.T) {
	products := newFakeProductStore()
	host := &photo.InMemoryHost{}
	svc := newCatalogService(products, host, nil)
	created, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 5,
		Photos: []photo.UploadInput{{FileName: "a.jpg", Body: strings.NewReader("a")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "sundarpur", "farmer-1", model.RoleFarmer, created.ID))
	require.Len(t, host.Destroyed, 1)
	require.Empty(t, products.products)
}

func TestDeleteRequiresOwnerOrAdmin(t *testing.T) {
	products := newFakeProductStore()
	svc := newCatalogService(products, &photo.InMemoryHost{}, nil)
	created, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 5,
	})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "sundarpur", "farmer-2", model.RoleFarmer, created.ID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeForbidden, appErr.Code)

	require.NoError(t, svc.Delete(context.Background(), "sundarpur", "admin-1", model.RoleAdmin, created.ID))
}

func TestUpdateRemovesAndAddsPhotos(t *testing.T) {
	products := newFakeProductStore()
	host := &photo.InMemoryHost{}
	svc := newCatalogService(products, host, nil)
	created, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 5,
		Photos: []photo.UploadInput{{FileName: "a.jpg", Body: strings.NewReader("a")}},
	})
	require.NoError(t, err)
	oldID := created.Photos[0].PublicID

	newName := "Cherry Tomatoes"
	updated, err := svc.Update(context.Background(), "sundarpur", "farmer-1", model.RoleFarmer, created.ID, UpdateInput{
		Name:           &newName,
		Price:          "12",
		RemovePublicID: []string{oldID},
		AddPhotos:      []photo.UploadInput{{FileName: "b.jpg", Body: strings.NewReader("b")}},
	})
	require.NoError(t, err)
	require.Equal(t, "Cherry Tomatoes", updated.Name)
	require.Equal(t, 12.0, updated.PricePerUnit)
	require.Len(t, updated.Photos, 1)
	require.NotEqual(t, oldID, updated.Photos[0].PublicID)
	require.Contains(t, host.Destroyed, oldID)
}

func TestListEnrichesFarmerNamesAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	products := newFakeProductStore()
	svc := newCatalogService(products, &photo.InMemoryHost{}, cache)
	_, err := svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Tomatoes", Price: 10, Stock: 5,
	})
	require.NoError(t, err)

	views, err := svc.List(context.Background(), "sundarpur")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "Asha Devi", views[0].FarmerName)

	// Second read is served from cache even if the store fails.
	products.listErr = errors.New("down")
	views, err = svc.List(context.Background(), "sundarpur")
	require.NoError(t, err)
	require.Len(t, views, 1)

	// A write invalidates the cache, so the store error now surfaces.
	_, err = svc.Create(context.Background(), "sundarpur", "farmer-1", CreateInput{
		Name: "Onions", Price: 8, Stock: 3,
	})
	require.NoError(t, err)
	_, err = svc.List(context.Background(), "sundarpur")
	require.Error(t, err)
}

func TestSweepStalePhotosDestroysOnlyOld(t *testing.T) {
	products := newFakeProductStore()
	host := &photo.InMemoryHost{}
	svc := newCatalogService(products, host, nil)

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()
	products.products["prod-1"] = model.Product{
		ID: "prod-1", TenantSlug: "sundarpur", FarmerID: "farmer-1", Name: "Tomatoes",
		PricePerUnit: 10, Stock: 5,
		Photos: []model.Photo{
			{URL: "u1", PublicID: "stale-1", Timestamp: old},
			{URL: "u2", PublicID: "fresh-1", Timestamp: fresh},
		},
	}

	result, err := svc.SweepStalePhotos(context.Background(), "sundarpur", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, result.ProductsTouched)
	require.Equal(t, 1, result.PhotosDestroyed)
	require.Equal(t, []string{"stale-1"}, host.Destroyed)
	require.Len(t, products.products["prod-1"].Photos, 1)
	require.Equal(t, "fresh-1", products.products["prod-1"].Photos[0].PublicID)
}
