package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/http/middleware"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/tenant"
)

func TestRequireTenantRejectsUnresolvedVillage(t *testing.T) {
	guarded := middleware.RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "TENANT_REQUIRED")
}

func TestRequireTenantPassesResolvedVillage(t *testing.T) {
	guarded := middleware.RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req = req.WithContext(tenant.With(req.Context(), model.Tenant{Slug: "sundarpur"}))
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
