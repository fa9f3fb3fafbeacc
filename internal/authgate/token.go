package authgate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ContractDesk/internal/domain"
)

// ErrInvalidToken is returned for tokens that fail verification or carry no name.
var ErrInvalidToken = errors.New("invalid identity token")

type identityClaims struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Firebase struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
	jwt.RegisteredClaims
}

// Verifier turns identity tokens issued by the identity provider into identities.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier for HMAC-signed tokens.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired()),
	}
}

// Identity verifies the token and returns the identity it carries.
func (v *Verifier) Identity(token string) (*domain.Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: verifier has no secret", ErrInvalidToken)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var claims identityClaims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Name) == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidToken)
	}

	provider := claims.Firebase.SignInProvider
	if provider == "" {
		provider = claims.Provider
	}
	return &domain.Identity{
		DisplayName:  claims.Name,
		AuthProvider: domain.ParseAuthProvider(provider),
	}, nil
}
