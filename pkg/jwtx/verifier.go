package jwtx

import (
	"errors"
	"time"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrTokenType    = errors.New("jwtx: unexpected token type")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verifier validates a JWT and gives you back the claims if it's legit.
// VerifyAt exists so callers that pin a clock (token rotation, tests)
// can evaluate expiry at their own instant.
type Verifier interface {
	Verify(token string) (*Claims, error)
	VerifyAt(token string, now time.Time) (*Claims, error)
}
