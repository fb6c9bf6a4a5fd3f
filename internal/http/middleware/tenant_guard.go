// Package middleware carries router-level guards shared across route groups.
package middleware

import (
	"net/http"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/tenant"
)

// RequireTenant rejects requests that reached a tenant-scoped route without
// a resolved village on the context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.From(r.Context()); !ok {
			common.JSONError(w, http.StatusBadRequest, common.CodeTenantRequired, "tenant is required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
