package storage

import "context"

type tenantKey struct{}

// SetTenant scopes subsequent store operations on ctx to tenantID.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant set on ctx, or "" in single-tenant mode.
// Stores treat an empty tenant as unscoped.
func GetTenant(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

// TenantVisible reports whether a record owned by owner may be seen from
// a context scoped to tenant.
func TenantVisible(tenant, owner string) bool {
	return tenant == "" || tenant == owner
}
