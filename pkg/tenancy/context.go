package tenancy

import "context"

type ctxKey struct{}

// TenantContext is the resolved tenant of a request and who is acting in it.
type TenantContext struct {
	Namespace string
	User      string
}

// WithTenant returns a new context with the given TenantContext attached.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// TenantFromContext retrieves the TenantContext from the context.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(TenantContext)
	return tc, ok
}

// NamespaceFromContext returns the tenant namespace, or DefaultNamespace if
// no tenant context is set.
func NamespaceFromContext(ctx context.Context) string {
	tc, ok := TenantFromContext(ctx)
	if !ok || tc.Namespace == "" {
		return DefaultNamespace
	}
	return tc.Namespace
}

// UserFromContext returns the acting user, or nil for an anonymous request.
// Writers record nil as the system actor.
func UserFromContext(ctx context.Context) *string {
	tc, ok := TenantFromContext(ctx)
	if !ok || tc.User == "" {
		return nil
	}
	user := tc.User
	return &user
}
