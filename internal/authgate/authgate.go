// Package authgate decides whether an identity may open a user-scoped route.
package authgate

import "ContractDesk/internal/domain"

type Decision string

const (
	Allow                Decision = "allow"
	RedirectLogin        Decision = "redirect_login"
	RedirectUnauthorized Decision = "redirect_unauthorized"
)

// Authorize compares the signed-in identity with the route's owner segment.
// Only google.com identities are checked against the owner: their display name
// is what the routes are keyed by. Do not widen this to other providers.
func Authorize(identity *domain.Identity, routeOwner string) Decision {
	if identity == nil {
		return RedirectLogin
	}
	if identity.AuthProvider == domain.ProviderGoogle && identity.DisplayName != routeOwner {
		return RedirectUnauthorized
	}
	return Allow
}

// Location is where the browser goes for a redirect decision.
func (d Decision) Location() string {
	switch d {
	case RedirectLogin:
		return "/login"
	case RedirectUnauthorized:
		return "/unauthorized"
	default:
		return ""
	}
}
