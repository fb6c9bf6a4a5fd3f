package order

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

type fakeTenantStore struct {
	tenants map[string]model.Tenant
	err     error
}

func newFakeTenantStore(slugs ...string) *fakeTenantStore {
	f := &fakeTenantStore{tenants: map[string]model.Tenant{}}
	for _, s := range slugs {
		f.tenants[s] = model.Tenant{Slug: s, Name: s}
	}
	return f
}

func (f *fakeTenantStore) GetBySlug(_ context.Context, slug string) (model.Tenant, error) {
	if f.err != nil {
		return model.Tenant{}, f.err
	}
	t, ok := f.tenants[slug]
	if !ok {
		return model.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTenantStore) List(_ context.Context) ([]model.Tenant, error) {
	var out []model.Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTenantStore) Create(_ context.Context, t model.Tenant) (model.Tenant, error) {
	f.tenants[t.Slug] = t
	return t, nil
}

type fakeUserStore struct {
	users     map[string]model.User
	getIDsErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{}}
}

func (f *fakeUserStore) add(u model.User) model.User {
	f.users[u.ID] = u
	return u
}

func (f *fakeUserStore) Create(_ context.Context, u model.User) (model.User, error) {
	u.ID = fmt.Sprintf("user-%d", len(f.users)+1)
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByIDs(_ context.Context, ids []string) ([]model.User, error) {
	if f.getIDsErr != nil {
		return nil, f.getIDsErr
	}
	var out []model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserStore) GetByPhone(_ context.Context, tenantSlug, phone string) (model.User, error) {
	for _, u := range f.users {
		if u.TenantSlug == tenantSlug && u.Phone == phone {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) GetByEmail(_ context.Context, tenantSlug, email string) (model.User, error) {
	for _, u := range f.users {
		if u.Email == email && (tenantSlug == "" || u.TenantSlug == tenantSlug) {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) GetByResetToken(_ context.Context, email, token string) (model.User, error) {
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id string, addr model.Address) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	u.Address = addr
	f.users[id] = u
	return u, nil
}

func (f *fakeUserStore) SetResetToken(_ context.Context, id, token string, expires time.Time) error {
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return nil
}

type fakeOrderStore struct {
	orders    map[string]model.Order
	nextID    int
	createErr error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[string]model.Order{}}
}

func (f *fakeOrderStore) Create(_ context.Context, o model.Order) (model.Order, error) {
	if f.createErr != nil {
		return model.Order{}, f.createErr
	}
	f.nextID++
	o.ID = fmt.Sprintf("order-%d", f.nextID)
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id string) (model.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return model.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) List(_ context.Context, filter store.OrderFilter) ([]model.Order, error) {
	var out []model.Order
	for _, o := range f.orders {
		if filter.TenantSlug != "" && o.TenantSlug != filter.TenantSlug {
			continue
		}
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.FarmerID != "" {
			match := false
			for _, it := range o.Items {
				if it.FarmerID == filter.FarmerID {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrderStore) Update(_ context.Context, o model.Order) (model.Order, error) {
	if _, ok := f.orders[o.ID]; !ok {
		return model.Order{}, store.ErrNotFound
	}
	o.UpdatedAt = time.Now()
	f.orders[o.ID] = o
	return o, nil
}

type orderFixture struct {
	svc      *Service
	tenants  *fakeTenantStore
	users    *fakeUserStore
	products *fakeProductStore
	orders   *fakeOrderStore
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		tenants:  newFakeTenantStore("sundarpur", "rampur"),
		users:    newFakeUserStore(),
		products: newFakeProductStore(),
		orders:   newFakeOrderStore(),
	}
	f.svc = NewService(ServiceConfig{
		Tenants:  f.tenants,
		Users:    f.users,
		Products: f.products,
		Orders:   f.orders,
		Logger:   zerolog.Nop(),
	})
	return f
}

type fakeProductStore struct {
	products     map[string]model.Product
	nextID       int
	decrementErr map[string]error
	restoreErr   map[string]error
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{
		products:     map[string]model.Product{},
		decrementErr: map[string]error{},
		restoreErr:   map[string]error{},
	}
}

func (f *fakeProductStore) add(p model.Product) model.Product {
	f.nextID++
	if p.ID == "" {
		p.ID = fmt.Sprintf("prod-%d", f.nextID)
	}
	f.products[p.ID] = p
	return p
}

func (f *fakeProductStore) Create(_ context.Context, p model.Product) (model.Product, error) {
	return f.add(p), nil
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
	if err := f.decrementErr[id]; err != nil {
		return false, err
	}
	p, ok := f.products[id]
	if !ok || p.TenantSlug != tenantSlug || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	f.products[id] = p
	return true, nil
}

func (f *fakeProductStore) RestoreStock(_ context.Context, id string, qty int) error {
	if err := f.restoreErr[id]; err != nil {
		return err
	}
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
