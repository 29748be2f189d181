// Package dpopx implements DPoP (RFC 9449) proof validation and generation.
// A proof is a short-lived JWT, signed by the client's own key, that binds
// a token request to that key. The validator returns the RFC 7638 thumbprint
// of the embedded key so the caller can record it in a cnf claim.
package dpopx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderName is the HTTP request header carrying the proof.
	HeaderName = "DPoP"

	// HeaderType is the required JOSE "typ" for proofs.
	HeaderType = "dpop+jwt"

	// DefaultMaxAge is how long a proof stays acceptable after its iat.
	DefaultMaxAge = time.Minute

	// maxProofSize caps the accepted proof length. Keeps oversized
	// garbage out of the base64/JSON decoders.
	maxProofSize = 8 * 1024
)

var (
	ErrProofRequired        = errors.New("dpopx: exactly one proof required")
	ErrMalformedProof       = errors.New("dpopx: malformed proof")
	ErrUnsupportedAlgorithm = errors.New("dpopx: unsupported proof algorithm")
	ErrInvalidPayload       = errors.New("dpopx: invalid proof payload")
	ErrExpiredProof         = errors.New("dpopx: proof expired")
	ErrInvalidSignature     = errors.New("dpopx: invalid proof signature")
)

// header is the JOSE header of a proof. The public key travels embedded
// in the header itself rather than being looked up by kid.
type header struct {
	Typ string    `json:"typ"`
	Alg string    `json:"alg"`
	JWK *jwtx.JWK `json:"jwk"`
}

// payload carries the request-binding claims of a proof.
type payload struct {
	JTI string `json:"jti"`
	HTM string `json:"htm"`
	HTU string `json:"htu"`
	IAT int64  `json:"iat"`
}

// Validator checks DPoP proofs presented against the token endpoint.
type Validator struct {
	// Enabled short-circuits validation entirely when false. Callers must
	// treat the resulting empty thumbprint as "binding not required",
	// never as "binding satisfied".
	Enabled bool

	// Endpoint is the canonical absolute token endpoint URL the proof's
	// htu claim must match.
	Endpoint string

	// MaxAge bounds proof freshness: iat + MaxAge must not be in the past.
	MaxAge time.Duration

	// Algorithms is the allow-list advertised in server metadata.
	Algorithms []string

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewValidator builds a validator for the given token endpoint.
func NewValidator(enabled bool, endpoint string) *Validator {
	return &Validator{
		Enabled:    enabled,
		Endpoint:   endpoint,
		MaxAge:     DefaultMaxAge,
		Algorithms: []string{"RS256"},
		Now:        time.Now,
	}
}

// Validate checks the DPoP header values of a token request and returns
// the thumbprint of the proof's key. Validation order matters: structural
// decoding happens before signature verification so a garbled proof is
// reported as malformed rather than as a bad signature.
func (v *Validator) Validate(proofs []string) (string, error) {
	if !v.Enabled {
		return "", nil
	}

	if len(proofs) != 1 {
		return "", ErrProofRequired
	}
	proof := proofs[0]

	if proof == "" || len(proof) > maxProofSize {
		return "", ErrMalformedProof
	}

	parts := strings.Split(proof, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ErrMalformedProof
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformedProof
	}
	var hdr header
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return "", ErrMalformedProof
	}

	if hdr.Typ != HeaderType {
		return "", fmt.Errorf("%w: typ must be %q", ErrMalformedProof, HeaderType)
	}
	if !slices.Contains(v.Algorithms, hdr.Alg) {
		return "", ErrUnsupportedAlgorithm
	}
	if hdr.JWK == nil {
		return "", fmt.Errorf("%w: missing embedded jwk", ErrMalformedProof)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedProof
	}
	var claims payload
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return "", ErrMalformedProof
	}

	if claims.JTI == "" || claims.HTM == "" || claims.HTU == "" || claims.IAT <= 0 {
		return "", ErrInvalidPayload
	}

	now := v.Now().UTC()
	if time.Unix(claims.IAT, 0).Add(v.MaxAge).Before(now) {
		return "", ErrExpiredProof
	}

	// Proofs are only ever presented against the token endpoint, so the
	// binding is fixed: POST to the canonical endpoint URL.
	if claims.HTM != "POST" {
		return "", fmt.Errorf("%w: htm mismatch", ErrInvalidPayload)
	}
	if claims.HTU != v.Endpoint {
		return "", fmt.Errorf("%w: htu mismatch", ErrInvalidPayload)
	}

	if err := v.verifySignature(proof, hdr); err != nil {
		return "", err
	}

	thumb, err := hdr.JWK.Thumbprint()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedProof, err)
	}
	return thumb, nil
}

// verifySignature checks the proof against its own embedded key. The key
// never selects the algorithm: the allow-list was already enforced and the
// parser pins it again.
func (v *Validator) verifySignature(proof string, hdr header) error {
	key, err := hdr.JWK.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedProof, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.Algorithms),
		jwt.WithoutClaimsValidation(),
	)
	_, err = parser.Parse(proof, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return ErrInvalidSignature
	}
	return nil
}
