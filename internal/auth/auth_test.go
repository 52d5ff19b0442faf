package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIdentitySecret = "identity-provider-test-secret"
	testLocalSecret    = "local-test-secret"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func identityToken(t *testing.T, mutate func(jwt.MapClaims)) string {
	claims := jwt.MapClaims{
		"sub":   "user-123",
		"email": "alice@example.com",
		"role":  "authenticated",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	return signToken(t, testIdentitySecret, claims)
}

func newTestVerifier(t *testing.T) *Verifier {
	v, err := NewVerifier(Config{
		IdentitySecret: testIdentitySecret,
		LocalSecret:    testLocalSecret,
	})
	require.NoError(t, err)
	return v
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestVerify_IdentityToken(t *testing.T) {
	v := newTestVerifier(t)

	claims, err := v.Verify(identityToken(t, nil))
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestVerify_LocalFallback(t *testing.T) {
	v := newTestVerifier(t)

	// Local tokens carry no audience claim; only the local secret accepts them.
	token := signToken(t, testLocalSecret, jwt.MapClaims{
		"sub":   "service-1",
		"email": "svc@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "service-1", claims.UserID)
	assert.Equal(t, "authenticated", claims.Role, "missing role defaults")
}

func TestVerify_Rejections(t *testing.T) {
	v := newTestVerifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", signToken(t, "some-other-secret", jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"expired", identityToken(t, func(c jwt.MapClaims) {
			c["exp"] = time.Now().Add(-time.Hour).Unix()
		})},
		{"not yet valid", identityToken(t, func(c jwt.MapClaims) {
			c["nbf"] = time.Now().Add(time.Hour).Unix()
		})},
		{"missing subject", identityToken(t, func(c jwt.MapClaims) {
			delete(c, "sub")
		})},
		{"wrong audience on identity secret without local match", signToken(t, testIdentitySecret, jwt.MapClaims{
			"sub": "user-123",
			"aud": "anon",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerify_RejectsNonHS256(t *testing.T) {
	v := newTestVerifier(t)

	// alg=none must never be accepted.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-123",
		"aud": "authenticated",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_IdentityOnlyConfig(t *testing.T) {
	v, err := NewVerifier(Config{IdentitySecret: testIdentitySecret})
	require.NoError(t, err)

	_, err = v.Verify(identityToken(t, nil))
	assert.NoError(t, err)

	// Local tokens have no fallback to land on.
	local := signToken(t, testLocalSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = v.Verify(local)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
