package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/service"
	"github.com/arcadialab/keygate/internal/auth/state/drivers/memory"
	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "https://auth.example.com"
	testClient = "client-1"
)

type fixture struct {
	svc   *service.LifecycleService
	store *memory.Store
	clock time.Time
}

func newFixture(t *testing.T, requireDPoP bool) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	signer, err := jwtx.NewSignerRS256("test-kid", pemKey)
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))

	store := memory.New()

	f := &fixture{
		store: store,
		clock: time.Unix(1_700_000_000, 0).UTC(),
	}
	f.svc = &service.LifecycleService{
		Signer:      signer,
		Verifier:    jwtx.NewVerifierRS256(keys, testIssuer),
		States:      store,
		Issuer:      testIssuer,
		Audience:    []string{"api.example.com"},
		RequireDPoP: requireDPoP,
		AccessTTL:   time.Hour,
		RefreshTTL:  30 * 24 * time.Hour,
		SessionTTL:  time.Hour,
		StateTTL:    time.Hour,
		Now:         func() time.Time { return f.clock },
	}
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// loggedInNonce creates a session and completes the login step,
// returning the redeemable nonce.
func (f *fixture) loggedInNonce(t *testing.T, sub string) string {
	t.Helper()
	_, nonce, err := f.svc.NewSession(context.Background(), testClient)
	require.NoError(t, err)
	require.NoError(t, f.svc.Login(context.Background(), sub, nonce))
	return nonce
}

func parseClaims(t *testing.T, f *fixture, token string) *jwtx.Claims {
	t.Helper()
	claims, err := f.svc.Verifier.VerifyAt(token, f.clock)
	require.NoError(t, err)
	return claims
}

func TestExchangeAuthorizationCode(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")

	pair, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenTypeBearer, pair.TokenType)
	assert.Equal(t, time.Hour, pair.ExpiresIn)

	refresh := parseClaims(t, f, pair.RefreshToken)
	assert.Equal(t, jwtx.TokenTypeRefresh, refresh.TokenType)
	assert.Equal(t, "alice", refresh.Subject)
	assert.Equal(t, testClient, refresh.ClientID)
	assert.ElementsMatch(t, []string{"api.example.com"}, refresh.Audience)

	access := parseClaims(t, f, pair.AccessToken)
	assert.Equal(t, jwtx.TokenTypeAccess, access.TokenType)
	assert.Equal(t, refresh.Subject, access.Subject)
	assert.NotEqual(t, refresh.ID, access.ID)
}

func TestExchangeAuthorizationCodeSingleUse(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")

	_, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	require.NoError(t, err)

	_, err = f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	assert.ErrorIs(t, err, service.ErrCodeAlreadyUsed)
}

func TestExchangeAuthorizationCodeRequiresLogin(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, nonce, err := f.svc.NewSession(ctx, testClient)
	require.NoError(t, err)

	_, err = f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)

	_, err = f.svc.ExchangeAuthorizationCode(ctx, testClient, "unknown-code", "")
	assert.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestExchangeAuthorizationCodeExpiry(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")

	// The state expires one hour after login; one second past that the
	// code is no longer redeemable.
	f.advance(time.Hour + time.Second)

	_, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	assert.ErrorIs(t, err, service.ErrGrantExpired)
}

func TestRotateRefreshTokenFreshness(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")
	pair, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	require.NoError(t, err)

	before := parseClaims(t, f, pair.RefreshToken)

	f.advance(10 * time.Minute)

	rotated, err := f.svc.RotateRefreshToken(ctx, pair.RefreshToken, "")
	require.NoError(t, err)

	after := parseClaims(t, f, rotated.RefreshToken)
	assert.NotEqual(t, before.ID, after.ID, "rotation must issue a fresh jti")
	assert.Equal(t, f.clock.Unix(), after.IssuedAt.Unix())
	assert.Greater(t, after.ExpiresAt.Unix(), before.ExpiresAt.Unix())

	// Subject, audience, and client carry forward unchanged
	assert.Equal(t, before.Subject, after.Subject)
	assert.ElementsMatch(t, before.Audience, after.Audience)
	assert.Equal(t, before.ClientID, after.ClientID)
}

func TestRotateRefreshTokenRejectsOtherTypes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")
	pair, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	require.NoError(t, err)

	// An access token is not a refresh token
	_, err = f.svc.RotateRefreshToken(ctx, pair.AccessToken, "")
	assert.ErrorIs(t, err, service.ErrInvalidGrant)

	_, err = f.svc.RotateRefreshToken(ctx, "garbage", "")
	assert.ErrorIs(t, err, service.ErrInvalidGrant)

	_, err = f.svc.RotateRefreshToken(ctx, "", "")
	assert.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestRotateRefreshTokenStrictExpiry(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")
	pair, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "")
	require.NoError(t, err)

	// Exactly at exp the token is still valid
	f.advance(f.svc.RefreshTTL)
	_, err = f.svc.RotateRefreshToken(ctx, pair.RefreshToken, "")
	assert.NoError(t, err)

	// One second past exp it is not
	f.advance(time.Second)
	_, err = f.svc.RotateRefreshToken(ctx, pair.RefreshToken, "")
	assert.ErrorIs(t, err, service.ErrGrantExpired)
}

func TestKeyBindingRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	nonce := f.loggedInNonce(t, "alice")

	pair, err := f.svc.ExchangeAuthorizationCode(ctx, testClient, nonce, "thumb-A")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenTypeDPoP, pair.TokenType)

	refresh := parseClaims(t, f, pair.RefreshToken)
	assert.Equal(t, "thumb-A", refresh.JKT())

	// Rotation with the same key succeeds and carries the binding forward
	rotated, err := f.svc.RotateRefreshToken(ctx, pair.RefreshToken, "thumb-A")
	require.NoError(t, err)
	assert.Equal(t, "thumb-A", parseClaims(t, f, rotated.RefreshToken).JKT())

	// A different key fails
	_, err = f.svc.RotateRefreshToken(ctx, pair.RefreshToken, "thumb-B")
	assert.ErrorIs(t, err, service.ErrKeyBindingMismatch)

	// So does no key at all
	_, err = f.svc.RotateRefreshToken(ctx, pair.RefreshToken, "")
	assert.ErrorIs(t, err, service.ErrKeyBindingMismatch)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, nonce, err := f.svc.NewSession(ctx, testClient)
	require.NoError(t, err)

	require.NoError(t, f.svc.Login(ctx, "alice", nonce))

	// Login is one-shot per state
	assert.ErrorIs(t, f.svc.Login(ctx, "alice", nonce), service.ErrAlreadyLoggedIn)

	assert.ErrorIs(t, f.svc.Login(ctx, "alice", "unknown"), service.ErrInvalidGrant)
	assert.ErrorIs(t, f.svc.Login(ctx, "", nonce), service.ErrInvalidGrant)
}

func TestLoginExpiredState(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, nonce, err := f.svc.NewSession(ctx, testClient)
	require.NoError(t, err)

	f.advance(f.svc.StateTTL + time.Second)
	assert.ErrorIs(t, f.svc.Login(ctx, "alice", nonce), service.ErrGrantExpired)
}

func TestExchangeSessionToken(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	token, nonce, err := f.svc.NewSession(ctx, testClient)
	require.NoError(t, err)

	// Before login the session cannot be exchanged
	_, err = f.svc.ExchangeSessionToken(ctx, token, "")
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)

	require.NoError(t, f.svc.Login(ctx, "alice", nonce))

	pair, err := f.svc.ExchangeSessionToken(ctx, token, "")
	require.NoError(t, err)

	refresh := parseClaims(t, f, pair.RefreshToken)
	assert.Equal(t, jwtx.TokenTypeRefresh, refresh.TokenType)
	assert.Equal(t, "alice", refresh.Subject)
	assert.Equal(t, testClient, refresh.ClientID)
}

func TestExchangeSessionTokenRejectsForgery(t *testing.T) {
	f := newFixture(t, false)
	other := newFixture(t, false)
	ctx := context.Background()

	// A session token signed by a different key must not be trusted,
	// even if a matching state exists.
	token, nonce, err := other.svc.NewSession(ctx, testClient)
	require.NoError(t, err)
	require.NoError(t, other.svc.Login(ctx, "mallory", nonce))

	_, err = f.svc.ExchangeSessionToken(ctx, token, "")
	assert.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestCookieGrant(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// No cookies: fresh unauthenticated session
	res, err := f.svc.CookieGrant(ctx, testClient, "", "", "")
	require.NoError(t, err)
	assert.False(t, res.LoggedIn)
	assert.NotEmpty(t, res.Nonce)
	assert.NotEmpty(t, res.SessionToken)
	assert.Nil(t, res.Pair)

	require.NoError(t, f.svc.Login(ctx, "alice", res.Nonce))

	// Session cookie only: session -> refresh -> access
	res2, err := f.svc.CookieGrant(ctx, testClient, res.SessionToken, "", "")
	require.NoError(t, err)
	assert.True(t, res2.LoggedIn)
	require.NotNil(t, res2.Pair)

	// Refresh cookie present: rotation wins
	res3, err := f.svc.CookieGrant(ctx, testClient, res.SessionToken, res2.Pair.RefreshToken, "")
	require.NoError(t, err)
	assert.True(t, res3.LoggedIn)
	require.NotNil(t, res3.Pair)

	j2 := parseClaims(t, f, res2.Pair.RefreshToken)
	j3 := parseClaims(t, f, res3.Pair.RefreshToken)
	assert.NotEqual(t, j2.ID, j3.ID)
}
