package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
// It's algorithm-neutral: RSA for our signing keys, EC for client
// proof keys that arrive embedded in DPoP headers.
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA", "EC"
	Use string `json:"use,omitempty"` // what we use it for: "sig", "enc"
	Alg string `json:"alg,omitempty"` // algorithm: "RS256", "ES256"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA fields
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// ECDSA fields
	Crv string `json:"crv,omitempty"` // curve: "P-256", "P-384", "P-521"
	X   string `json:"x,omitempty"`   // base64url encoded x-coordinate
	Y   string `json:"y,omitempty"`   // base64url encoded y-coordinate
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// PublicKey parses the JWK into a crypto public key usable for
// signature verification.
func (j JWK) PublicKey() (any, error) {
	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb).Int64()
		return &rsa.PublicKey{N: n, E: int(e)}, nil

	case "EC":
		var curve elliptic.Curve
		switch j.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, errors.New("jwtx: unsupported EC curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	default:
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}
}

// Thumbprint computes the RFC 7638 JWK thumbprint: the required members
// for the key type are serialised as a JSON object with lexicographically
// sorted keys and no whitespace, hashed with SHA-256, and base64url
// encoded without padding.
func (j JWK) Thumbprint() (string, error) {
	var members map[string]string

	switch j.Kty {
	case "RSA":
		if j.N == "" || j.E == "" {
			return "", errors.New("jwtx: RSA JWK missing n or e")
		}
		members = map[string]string{"e": j.E, "kty": j.Kty, "n": j.N}
	case "EC":
		if j.Crv == "" || j.X == "" || j.Y == "" {
			return "", errors.New("jwtx: EC JWK missing crv, x or y")
		}
		members = map[string]string{"crv": j.Crv, "kty": j.Kty, "x": j.X, "y": j.Y}
	default:
		return "", errors.New("jwtx: unsupported kty " + j.Kty)
	}

	// json.Marshal sorts map keys, which gives the canonical ordering
	// RFC 7638 requires.
	canonical, err := json.Marshal(members)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
