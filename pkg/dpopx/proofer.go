package dpopx

import (
	"crypto/rsa"
	"time"

	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// Proofer generates DPoP proofs for outbound token requests. Clients keep
// one Proofer per key pair: the same key must sign every proof for a given
// refresh token chain or rotation fails the binding check.
type Proofer struct {
	key *rsa.PrivateKey
}

// NewProofer wraps an RSA private key for proof generation.
func NewProofer(key *rsa.PrivateKey) *Proofer {
	return &Proofer{key: key}
}

// Proof builds a compact proof for a request with the given method and URL.
func (p *Proofer) Proof(method, url string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"jti": jwtx.NewJTI(),
		"htm": method,
		"htu": url,
		"iat": now.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["typ"] = HeaderType
	t.Header["jwk"] = p.publicJWK()
	return t.SignedString(p.key)
}

// Thumbprint returns the RFC 7638 thumbprint of the proofer's public key,
// i.e. the value the server will record in cnf.jkt.
func (p *Proofer) Thumbprint() (string, error) {
	return p.publicJWK().Thumbprint()
}

func (p *Proofer) publicJWK() jwtx.JWK {
	j := jwtx.NewRSAJWK("", "", "", &p.key.PublicKey)
	// Proof JWKs carry only the required members
	return jwtx.JWK{Kty: j.Kty, N: j.N, E: j.E}
}
