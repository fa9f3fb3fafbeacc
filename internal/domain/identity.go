package domain

import "strings"

// AuthProvider enumerates the identity providers a user can sign in with.
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google.com"
	ProviderOther    AuthProvider = "other"
)

// ParseAuthProvider maps provider ids as issued by the identity service.
func ParseAuthProvider(value string) AuthProvider {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "password", "email":
		return ProviderPassword
	case "google.com", "google":
		return ProviderGoogle
	default:
		return ProviderOther
	}
}

// Identity is the opaque authenticated user. A nil *Identity means "not signed in".
type Identity struct {
	DisplayName  string
	AuthProvider AuthProvider
}
