package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestThumbprintRFC7638Vector uses the worked RSA example from RFC 7638
// section 3.1 and its published thumbprint.
func TestThumbprintRFC7638Vector(t *testing.T) {
	jwk := jwtx.JWK{
		Kty: "RSA",
		Kid: "2011-04-29",
		Alg: "RS256",
		N: "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAt" +
			"VT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn6" +
			"4tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FD" +
			"W2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n9" +
			"1CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINH" +
			"aQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
		E: "AQAB",
	}

	thumb, err := jwk.Thumbprint()
	require.NoError(t, err)
	assert.Equal(t, "NzbLsXh8uDCcd-6MNwXF4W_7noWXFZAfHkxZsRGC9Xs", thumb)
}

func TestThumbprintIgnoresOptionalMembers(t *testing.T) {
	key := mustKey(t)

	with := jwtx.NewRSAJWK("kid-1", "sig", "RS256", &key.PublicKey)
	without := jwtx.JWK{Kty: with.Kty, N: with.N, E: with.E}

	t1, err := with.Thumbprint()
	require.NoError(t, err)
	t2, err := without.Thumbprint()
	require.NoError(t, err)

	assert.Equal(t, t1, t2, "kid/use/alg must not affect the thumbprint")
}

func TestThumbprintRejectsIncompleteKey(t *testing.T) {
	_, err := jwtx.JWK{Kty: "RSA", N: "abc"}.Thumbprint()
	assert.Error(t, err)

	_, err = jwtx.JWK{Kty: "oct"}.Thumbprint()
	assert.Error(t, err)
}

func TestJWKPublicKeyRoundTrip(t *testing.T) {
	key := mustKey(t)
	jwk := jwtx.NewRSAJWK("kid-1", "sig", "RS256", &key.PublicKey)

	parsed, err := jwk.PublicKey()
	require.NoError(t, err)

	rsaPub, ok := parsed.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Zero(t, rsaPub.N.Cmp(key.PublicKey.N))
	assert.Equal(t, key.PublicKey.E, rsaPub.E)
}

func TestKeySetReadiness(t *testing.T) {
	ks := jwtx.NewKeySet()
	assert.False(t, ks.IsReady())

	key := mustKey(t)
	require.NoError(t, ks.AddJWK(jwtx.NewRSAJWK("kid-1", "sig", "RS256", &key.PublicKey)))
	assert.True(t, ks.IsReady())

	_, err := ks.Get("kid-1")
	assert.NoError(t, err)

	_, err = ks.Get("missing")
	assert.ErrorIs(t, err, jwtx.ErrNoKey)

	jwks := ks.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "kid-1", jwks.Keys[0].Kid)
}

func mustKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}
