package common

import "context"

type ctxKey string

const (
	userIDKey     ctxKey = "auth/user-id"
	roleKey       ctxKey = "auth/role"
	tenantSlugKey ctxKey = "tenant/slug"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithRole stores the authenticated user's role on the provided context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// Role extracts the authenticated user's role from the context if present.
func Role(ctx context.Context) (string, bool) {
	v := ctx.Value(roleKey)
	if v == nil {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

// WithTenantSlug stores the resolved tenant slug on the provided context so
// low-level middleware can log it without importing the resolver.
func WithTenantSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, tenantSlugKey, slug)
}

// TenantSlug extracts the resolved tenant slug from the context if present.
func TenantSlug(ctx context.Context) (string, bool) {
	v := ctx.Value(tenantSlugKey)
	if v == nil {
		return "", false
	}
	slug, ok := v.(string)
	return slug, ok
}
