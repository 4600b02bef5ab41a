package tenancy

import (
	"encoding/json"
	"net/http"
)

// Middleware resolves the tenant with resolver and stores it in the request
// context. On resolution failure it responds with a 400 JSON error.
func Middleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tc)))
		})
	}
}

// NewMiddleware creates middleware with the resolver for mode. defaultNamespace
// is used by ModeSingle.
func NewMiddleware(mode TenancyMode, defaultNamespace string) func(http.Handler) http.Handler {
	var resolver TenantResolver
	switch mode {
	case ModeNamespace:
		resolver = NamespaceTenantResolver{}
	default:
		resolver = SingleTenantResolver{Namespace: defaultNamespace}
	}
	return Middleware(resolver)
}
