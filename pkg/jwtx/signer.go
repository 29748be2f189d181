package jwtx

// Header "typ" values. Access tokens get the RFC 9068 media type so
// resource servers can reject other token kinds at the header level.
const (
	HeaderTypeJWT    = "jwt"
	HeaderTypeAccess = "at+jwt"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string

	// Sign produces a token with typ "jwt" (session and refresh tokens).
	Sign(Claims) (string, error)

	// SignAccess produces a token with typ "at+jwt".
	SignAccess(Claims) (string, error)

	PublicJWK() JWK
	Validate() error
}

// NewSignerRS256 creates an RS256 signer from PEM bytes.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	return newRS256Signer(kid, pemKey)
}
