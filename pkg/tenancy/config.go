// Package tenancy resolves the CRM tenant and the acting user of a request.
// Every catalog, subject and history row is scoped to one tenant namespace.
// A server runs either single-tenant or with a namespace per request.
package tenancy

import "fmt"

// TenancyMode controls how tenant context is resolved.
type TenancyMode string

const (
	// ModeSingle uses one fixed namespace for all requests.
	ModeSingle TenancyMode = "single"
	// ModeNamespace requires a namespace per request.
	ModeNamespace TenancyMode = "namespace"
)

// DefaultNamespace is the namespace of a single-tenant deployment.
const DefaultNamespace = "default"

// ParseMode validates a configured tenancy mode. Empty means ModeSingle.
func ParseMode(s string) (TenancyMode, error) {
	switch TenancyMode(s) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeNamespace:
		return ModeNamespace, nil
	}
	return "", fmt.Errorf("unknown tenancy mode %q (want %q or %q)", s, ModeSingle, ModeNamespace)
}
