package user

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

type fakeUserStore struct {
	users map[string]model.User
}

func (f *fakeUserStore) Create(_ context.Context, u model.User) (model.User, error) {
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
	return nil, nil
}

func (f *fakeUserStore) GetByPhone(_ context.Context, tenantSlug, phone string) (model.User, error) {
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) GetByEmail(_ context.Context, tenantSlug, email string) (model.User, error) {
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

func newTestService() (*Service, *fakeUserStore) {
	users := &fakeUserStore{users: map[string]model.User{
		"user-1": {ID: "user-1", TenantSlug: "sundarpur", Name: "Asha Devi", Phone: "9800000001", Role: model.RoleBuyer, PasswordHash: "$argon2id$hash"},
		"user-2": {ID: "user-2", TenantSlug: "sundarpur", Name: "Gopal Singh", Phone: "9800000002", Role: model.RoleFarmer},
	}}
	return NewService(users), users
}

func requireAppCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
	require.Equal(t, status, appErr.HTTPStatus)
}

func TestGetTenantChecked(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.Get(context.Background(), "sundarpur", "user-1")
	require.NoError(t, err)
	require.Equal(t, "Asha Devi", u.Name)

	_, err = svc.Get(context.Background(), "rampur", "user-1")
	requireAppCode(t, err, common.CodeTenantMismatch, http.StatusForbidden)

	_, err = svc.Get(context.Background(), "sundarpur", "missing")
	requireAppCode(t, err, common.CodeNotFound, http.StatusNotFound)
}

func TestUpdateProfileAuthorization(t *testing.T) {
	svc, users := newTestService()
	addr := model.Address{Line1: "Ward 4", City: "Sundarpur", Pincode: "784512"}

	ctx := common.WithUserID(context.Background(), "user-1")
	ctx = common.WithRole(ctx, model.RoleBuyer)
	u, err := svc.UpdateProfile(ctx, "sundarpur", "user-1", addr)
	require.NoError(t, err)
	require.Equal(t, addr, u.Address)
	require.Equal(t, addr, users.users["user-1"].Address)

	_, err = svc.UpdateProfile(ctx, "sundarpur", "user-2", addr)
	requireAppCode(t, err, common.CodeForbidden, http.StatusForbidden)

	adminCtx := common.WithUserID(context.Background(), "admin-1")
	adminCtx = common.WithRole(adminCtx, model.RoleAdmin)
	_, err = svc.UpdateProfile(adminCtx, "sundarpur", "user-2", addr)
	require.NoError(t, err)
}
