package jwtx

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates JWTs signed using RS256.
type RS256Verifier struct {
	keys   *KeySet
	issuer string
}

// NewVerifierRS256 creates a verifier using a KeySet of RSA public keys.
func NewVerifierRS256(keys *KeySet, issuer string) *RS256Verifier {
	return &RS256Verifier{keys: keys, issuer: issuer}
}

// Verify validates the JWT string against the current clock.
func (v *RS256Verifier) Verify(tokenStr string) (*Claims, error) {
	return v.VerifyAt(tokenStr, time.Now().UTC())
}

// VerifyAt validates the JWT string and returns its parsed Claims.
// Claim validation is done by hand rather than by the parser: expiry is
// compared at whole-second resolution against the supplied instant.
func (v *RS256Verifier) VerifyAt(tokenStr string, now time.Time) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		// Need the kid to know which key to use
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}

		// Try to find this key in our set
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, ErrUnknownKID
		}

		// Make sure it's actually an RSA key (it should be, watch it not be)
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: invalid RSA key type")
		}
		return rsaPub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKID):
			return nil, ErrUnknownKID
		case errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, rsa.ErrVerification):
			return nil, ErrInvalidSig
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}

	// Now check the claim requirements
	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryAt(now); err != nil {
		return nil, err
	}

	return claims, nil
}
