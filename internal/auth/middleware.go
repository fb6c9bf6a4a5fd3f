package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/organoz/village-market/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware attaches authenticated identity to request contexts.
type Middleware struct {
	Service *Service
}

// Authenticate resolves the bearer token when one is present. Anonymous
// requests pass through untouched so public listings keep working.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.identify(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests without a valid token.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.identify(r)
		switch {
		case errors.Is(err, errNoToken):
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		case err != nil:
			common.RenderError(w, err)
		default:
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// RequireRole layers a role check on top of RequireAuth.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role, _ := common.Role(r.Context()); !allowed[role] {
				common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func (m Middleware) identify(r *http.Request) (context.Context, error) {
	if m.Service == nil {
		return r.Context(), errors.New("auth: service not configured")
	}
	token := bearerToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	claims, err := m.Service.ParseAccessToken(token)
	if err != nil {
		return r.Context(), err
	}
	ctx := common.WithUserID(r.Context(), claims.UserID)
	return common.WithRole(ctx, claims.Role), nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
