package tenancy

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const maxNamespaceLen = 63

// namespaceRe is the DNS label convention: lowercase alphanumerics and
// hyphens, starting and ending with an alphanumeric.
var namespaceRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

const (
	// TenantQueryParam selects the namespace in ModeNamespace.
	TenantQueryParam = "tenant"
	// TenantHeader selects the namespace when the query parameter is absent.
	TenantHeader = "X-Tenant"
	// UserHeader carries the authenticated principal set by the fronting proxy.
	UserHeader = "X-User-Principal"
)

// TenantResolver resolves the tenant context from an HTTP request.
type TenantResolver interface {
	Resolve(r *http.Request) (TenantContext, error)
}

// SingleTenantResolver places every request in one namespace.
type SingleTenantResolver struct {
	Namespace string
}

// Resolve returns the configured namespace and the request's user.
func (s SingleTenantResolver) Resolve(r *http.Request) (TenantContext, error) {
	ns := s.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return TenantContext{Namespace: ns, User: userFromRequest(r)}, nil
}

// NamespaceTenantResolver reads the namespace from the request. It is
// required in this mode.
type NamespaceTenantResolver struct{}

// Resolve checks the query parameter first, then the X-Tenant header.
func (n NamespaceTenantResolver) Resolve(r *http.Request) (TenantContext, error) {
	ns := r.URL.Query().Get(TenantQueryParam)
	if ns == "" {
		ns = r.Header.Get(TenantHeader)
	}
	if ns == "" {
		return TenantContext{}, fmt.Errorf("tenant is required (use ?%s= query param or %s header)", TenantQueryParam, TenantHeader)
	}
	if err := ValidateNamespace(ns); err != nil {
		return TenantContext{}, err
	}
	return TenantContext{Namespace: ns, User: userFromRequest(r)}, nil
}

// ValidateNamespace checks a namespace against the DNS label rules.
func ValidateNamespace(ns string) error {
	if len(ns) > maxNamespaceLen {
		return fmt.Errorf("tenant %q exceeds maximum length of %d characters", ns, maxNamespaceLen)
	}
	if !namespaceRe.MatchString(ns) {
		return fmt.Errorf("tenant %q is invalid: must consist of lowercase alphanumeric characters or hyphens, and must start and end with an alphanumeric character", ns)
	}
	return nil
}

func userFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}
