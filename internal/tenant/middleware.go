package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

type contextKey string

const tenantContextKey contextKey = "tenant.resolved"

// Resolver resolves the tenant for a request from an override header or the
// request host, then loads the tenant record. Absence of any candidate is a
// valid state: public endpoints run without a tenant.
type Resolver struct {
	HeaderName string
	Store      store.TenantStore
	Logger     zerolog.Logger
}

// NewResolver returns a resolver using headerName for overrides, defaulting
// to "X-Tenant-Slug".
func NewResolver(headerName string, tenants store.TenantStore, logger zerolog.Logger) *Resolver {
	if headerName == "" {
		headerName = "X-Tenant-Slug"
	}
	return &Resolver{HeaderName: headerName, Store: tenants, Logger: logger}
}

// Middleware resolves the tenant and injects it into the request context. An
// unknown slug fails the request with 404; a store failure with 500. No
// candidate passes through without a tenant.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		slug := r.Candidate(req)
		if slug == "" {
			next.ServeHTTP(w, req)
			return
		}
		resolved, err := r.Store.GetBySlug(req.Context(), slug)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				common.JSONError(w, http.StatusNotFound, common.CodeInvalidTenant, "tenant not found: "+slug, nil)
				return
			}
			r.Logger.Error().Err(err).Str("tenant", slug).Msg("tenant lookup failed")
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "tenant lookup failed", nil)
			return
		}
		ctx := With(req.Context(), resolved)
		ctx = common.WithTenantSlug(ctx, resolved.Slug)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// Candidate extracts the slug candidate without hitting the store. The
// override header wins verbatim; otherwise a host with at least three
// dot-separated labels yields its first label.
func (r *Resolver) Candidate(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if slug := strings.TrimSpace(req.Header.Get(r.HeaderName)); slug != "" {
		return slug
	}
	host := hostWithoutPort(req.Host)
	labels := strings.Split(strings.ToLower(host), ".")
	if len(labels) >= 3 {
		return strings.TrimSpace(labels[0])
	}
	return ""
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx != -1 {
			host := hostport[1:idx]
			if host != "" {
				return host
			}
		}
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	if idx := strings.Index(hostport, ":"); idx != -1 && strings.Count(hostport, ":") == 1 {
		return hostport[:idx]
	}
	return hostport
}

// With stores the resolved tenant inside the context.
func With(ctx context.Context, t model.Tenant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey, t)
}

// From extracts the resolved tenant from the context if available.
func From(ctx context.Context) (model.Tenant, bool) {
	if ctx == nil {
		return model.Tenant{}, false
	}
	t, ok := ctx.Value(tenantContextKey).(model.Tenant)
	if !ok || t.Slug == "" {
		return model.Tenant{}, false
	}
	return t, true
}

// SlugFrom returns only the resolved tenant slug, or empty when absent.
func SlugFrom(ctx context.Context) string {
	t, ok := From(ctx)
	if !ok {
		return ""
	}
	return t.Slug
}
