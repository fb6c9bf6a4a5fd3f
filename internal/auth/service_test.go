package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
)

func registerTestUser(t *testing.T, svc *Service, tenantSlug, phone, password string) model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), tenantSlug, RegisterInput{
		Name:     "Asha Devi",
		Phone:    phone,
		Email:    phone + "@example.com",
		Password: password,
		Role:     model.RoleFarmer,
	})
	require.NoError(t, err)
	return user
}

func TestRegisterRequiresTenant(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	_, err := svc.Register(context.Background(), "", RegisterInput{
		Name: "Asha", Phone: "9000000001", Password: "secret1",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeTenantRequired, appErr.Code)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	_, err := svc.Register(context.Background(), "sundarpur", RegisterInput{
		Name: "Asha", Phone: "9000000001", Password: "short",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestRegisterDuplicatePhoneConflicts(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	_, err := svc.Register(context.Background(), "sundarpur", RegisterInput{
		Name: "Other", Phone: "9000000001", Password: "secret2",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)

	// Same phone in another village is fine.
	_, err = svc.Register(context.Background(), "rampur", RegisterInput{
		Name: "Other", Phone: "9000000001", Password: "secret2",
	})
	require.NoError(t, err)
}

func TestLoginIssuesTokenWithClaims(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	user := registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	result, err := svc.Login(context.Background(), "sundarpur", "9000000001", "secret1")
	require.NoError(t, err)
	require.Equal(t, user.ID, result.User.ID)
	require.NotEmpty(t, result.Token)

	claims, err := svc.ParseAccessToken(result.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, "sundarpur", claims.TenantSlug)
	require.Equal(t, model.RoleFarmer, claims.Role)
}

func TestLoginWrongPasswordAndWrongTenant(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	_, err := svc.Login(context.Background(), "sundarpur", "9000000001", "wrong")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)

	_, err = svc.Login(context.Background(), "rampur", "9000000001", "secret1")
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestTokenExpires(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	fixed := time.Now()
	svc.WithNow(func() time.Time { return fixed })
	result, err := svc.Login(context.Background(), "sundarpur", "9000000001", "secret1")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return fixed.Add(2 * time.Minute) })
	_, err = svc.ParseAccessToken(result.Token)
	require.Error(t, err)
}

func TestForgotIsEnumerationSafe(t *testing.T) {
	users := newFakeUserStore()
	sender := &inMemorySender{}
	svc := newTestService(t, users, sender)
	registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	require.NoError(t, svc.Forgot(context.Background(), "9000000001@example.com"))
	require.NoError(t, svc.Forgot(context.Background(), "nobody@example.com"))

	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0].Body, "reset-password?token=")
}

func TestForgotStoresHexTokenWithExpiry(t *testing.T) {
	users := newFakeUserStore()
	svc := newTestService(t, users, &inMemorySender{})
	user := registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	require.NoError(t, svc.Forgot(context.Background(), user.Email))

	stored := users.users[user.ID]
	require.Len(t, stored.ResetToken, 48)
	require.NotNil(t, stored.ResetExpires)
	require.WithinDuration(t, time.Now().Add(time.Hour), *stored.ResetExpires, time.Minute)
}

func TestResetUpdatesPasswordAndClearsToken(t *testing.T) {
	users := newFakeUserStore()
	sender := &inMemorySender{}
	svc := newTestService(t, users, sender)
	user := registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	require.NoError(t, svc.Forgot(context.Background(), user.Email))
	token := users.users[user.ID].ResetToken

	require.NoError(t, svc.Reset(context.Background(), user.Email, token, "freshpass"))
	require.Empty(t, users.users[user.ID].ResetToken)

	_, err := svc.Login(context.Background(), "sundarpur", "9000000001", "freshpass")
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "sundarpur", "9000000001", "secret1")
	require.Error(t, err)

	// Token is single-use.
	err = svc.Reset(context.Background(), user.Email, token, "another1")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_TOKEN", appErr.Code)
}

func TestResetRejectsExpiredToken(t *testing.T) {
	users := newFakeUserStore()
	svc := newTestService(t, users, &inMemorySender{})
	user := registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	require.NoError(t, svc.Forgot(context.Background(), user.Email))
	token := users.users[user.ID].ResetToken

	users.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	err := svc.Reset(context.Background(), user.Email, token, "freshpass")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_TOKEN", appErr.Code)
}

func TestAdminLoginRequiresAdminRole(t *testing.T) {
	users := newFakeUserStore()
	svc := newTestService(t, users, nil)
	registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")

	_, err := svc.AdminLogin(context.Background(), "9000000001@example.com", "secret1")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestRequireRoleMiddleware(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")
	result, err := svc.Login(context.Background(), "sundarpur", "9000000001", "secret1")
	require.NoError(t, err)

	mw := Middleware{Service: svc}
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name   string
		roles  []string
		header string
		want   int
	}{
		{"allowed role", []string{model.RoleFarmer}, "Bearer " + result.Token, http.StatusOK},
		{"wrong role", []string{model.RoleAdmin}, "Bearer " + result.Token, http.StatusForbidden},
		{"no token", []string{model.RoleFarmer}, "", http.StatusUnauthorized},
		{"garbage token", []string{model.RoleFarmer}, "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw.RequireRole(tc.roles...)(okHandler).ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestPasswordHashNeverSerialized(t *testing.T) {
	svc := newTestService(t, newFakeUserStore(), nil)
	user := registerTestUser(t, svc, "sundarpur", "9000000001", "secret1")
	require.NotEmpty(t, user.PasswordHash)

	rec := httptest.NewRecorder()
	common.JSON(rec, http.StatusOK, map[string]any{"data": user})
	require.False(t, strings.Contains(rec.Body.String(), "argon2id"))
}
