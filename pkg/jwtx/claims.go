package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminator values carried in the "token_type" claim.
// Every token minted by the service declares which stage of the chain
// it belongs to, and redemption paths check the discriminator before
// anything else.
const (
	TokenTypeSession = "session_token"
	TokenTypeRefresh = "refresh_token"
	TokenTypeAccess  = "access_token"
)

// Default token TTL constants. These provide sensible security defaults
// but are usually overridden via service configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultSessionTokenTTL is the default lifetime for session tokens,
	// matching the authorization state they reference.
	DefaultSessionTokenTTL = time.Hour
)

// Confirmation is the RFC 7800 "cnf" claim. JKT carries the RFC 7638
// thumbprint of the key a proof-of-possession token is bound to.
type Confirmation struct {
	JKT string `json:"jkt"`
}

// Claims are the claims shared by every token in the chain. Keeping
// additive changes only to preserve compatibility for existing tokens.
type Claims struct {
	jwt.RegisteredClaims

	// ClientID identifies the OAuth2 client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// TokenType discriminates session, refresh, and access tokens.
	TokenType string `json:"token_type,omitempty"`

	// Nonce links a session token back to its authorization state record.
	// Only present on session tokens.
	Nonce string `json:"nonce,omitempty"`

	// Confirmation binds the token to a client key (DPoP). Present on
	// refresh tokens issued under proof-of-possession.
	Confirmation *Confirmation `json:"cnf,omitempty"`
}

// NewClaims builds minimally-correct claims for a token of the given type.
func NewClaims(
	tokenType, issuer, subject string,
	audience []string,
	clientID string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		ClientID:  clientID,
		TokenType: tokenType,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// JKT returns the cnf.jkt thumbprint, or "" for an unbound token.
func (c *Claims) JKT() string {
	if c.Confirmation == nil {
		return ""
	}
	return c.Confirmation.JKT
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateType checks the token_type discriminator.
func (c *Claims) ValidateType(expected string) error {
	if c.TokenType != expected {
		return ErrTokenType
	}
	return nil
}

// ValidateExpiryAt ensures the token hasn't expired at the given instant.
// Expiry is compared at whole-second resolution: a token whose exp equals
// the current second is still valid, the next second it is not.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if c.ExpiresAt.Unix() < now.Unix() {
		return ErrExpired
	}
	return nil
}
