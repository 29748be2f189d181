package jwtx_test

import (
	"testing"
	"time"

	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClaims(t *testing.T) {
	now := time.Now().UTC()
	claims := jwtx.NewClaims(
		jwtx.TokenTypeSession,
		exampleIssuer,
		"user-1",
		[]string{"api.example.com"},
		"client-1",
		time.Hour,
		now,
	)

	assert.Equal(t, exampleIssuer, claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, jwtx.TokenTypeSession, claims.TokenType)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
	assert.Nil(t, claims.Confirmation)
	assert.Empty(t, claims.JKT())
}

func TestNewJTIUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		jti := jwtx.NewJTI()
		require.NotEmpty(t, jti)
		require.False(t, seen[jti], "jti collision")
		seen[jti] = true
	}
}

func TestValidateType(t *testing.T) {
	claims := jwtx.NewClaims(
		jwtx.TokenTypeRefresh, exampleIssuer, "u", nil, "c", time.Minute, time.Now(),
	)

	assert.NoError(t, claims.ValidateType(jwtx.TokenTypeRefresh))
	assert.ErrorIs(t, claims.ValidateType(jwtx.TokenTypeAccess), jwtx.ErrTokenType)
}

func TestValidateExpiryAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	claims := jwtx.NewClaims(
		jwtx.TokenTypeAccess, exampleIssuer, "u", nil, "c", time.Minute, now,
	)

	exp := claims.ExpiresAt.Time

	assert.NoError(t, claims.ValidateExpiryAt(now))
	assert.NoError(t, claims.ValidateExpiryAt(exp), "exp equal to now is still valid")

	// Sub-second fractions within the same second do not expire the token
	assert.NoError(t, claims.ValidateExpiryAt(exp.Add(500*time.Millisecond)))

	assert.ErrorIs(t, claims.ValidateExpiryAt(exp.Add(time.Second)), jwtx.ErrExpired)
}

func TestValidateIssuer(t *testing.T) {
	claims := jwtx.NewClaims(
		jwtx.TokenTypeAccess, exampleIssuer, "u", nil, "c", time.Minute, time.Now(),
	)

	assert.NoError(t, claims.ValidateIssuer(exampleIssuer))
	assert.NoError(t, claims.ValidateIssuer(""), "empty expectation enforces nothing")
	assert.ErrorIs(t, claims.ValidateIssuer("https://other.example.com"), jwtx.ErrIssuer)
}
