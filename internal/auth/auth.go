// Package auth verifies bearer tokens issued by an external identity
// provider. The gateway never issues tokens itself; it only checks
// signatures and extracts the user identity for downstream handlers.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the token failed verification against every
// configured secret. Handlers map this to 401.
var ErrInvalidToken = errors.New("invalid token")

// ErrNotConfigured indicates no verification secret is configured.
var ErrNotConfigured = errors.New("auth verifier not configured")

// identityAudience is the audience claim set by the identity provider on
// end-user access tokens.
const identityAudience = "authenticated"

// Claims is the verified identity extracted from a token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Verifier validates HS256 tokens. It tries the identity provider's secret
// first (with its audience claim enforced), then falls back to the local
// secret for self-issued tokens (development, service-to-service).
type Verifier struct {
	identitySecret []byte
	localSecret    []byte
}

// Config configures a Verifier. At least one secret must be set.
type Config struct {
	// IdentitySecret is the identity provider's JWT signing secret.
	IdentitySecret string

	// LocalSecret verifies self-issued tokens when the identity provider
	// secret does not match (or is not configured).
	LocalSecret string
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.IdentitySecret == "" && cfg.LocalSecret == "" {
		return nil, ErrNotConfigured
	}
	v := &Verifier{}
	if cfg.IdentitySecret != "" {
		v.identitySecret = []byte(cfg.IdentitySecret)
	}
	if cfg.LocalSecret != "" {
		v.localSecret = []byte(cfg.LocalSecret)
	}
	return v, nil
}

// tokenClaims is the raw claim set carried by both token flavors.
type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verify checks the token signature and standard claims (exp, nbf) and
// returns the caller's identity. The identity provider secret is tried
// first; any failure there falls through to the local secret, so a token
// is rejected only when no configured secret accepts it.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	if v.identitySecret != nil {
		claims, err := v.parse(tokenString, v.identitySecret, identityAudience)
		if err == nil {
			return claims, nil
		}
	}

	if v.localSecret != nil {
		claims, err := v.parse(tokenString, v.localSecret, "")
		if err == nil {
			return claims, nil
		}
	}

	return nil, ErrInvalidToken
}

func (v *Verifier) parse(tokenString string, secret []byte, audience string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	var tc tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &tc, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := tc.Role
	if role == "" {
		role = identityAudience
	}

	return &Claims{
		UserID: tc.Subject,
		Email:  tc.Email,
		Role:   role,
	}, nil
}
