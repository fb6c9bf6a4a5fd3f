package tenant

// PrefixKey creates a namespaced cache/queue key per tenant slug.
func PrefixKey(tenantSlug, key string) string {
	if tenantSlug == "" {
		return key
	}
	return tenantSlug + ":" + key
}
