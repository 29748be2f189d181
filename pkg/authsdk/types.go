// Package authsdk provides the wire types shared between the keygate
// service and its clients, plus a small HTTP client for the token
// endpoints. Handlers serialize these types; the SDK parses them back.
package authsdk

import "github.com/arcadialab/keygate/pkg/jwtx"

// TokenResponse is the success body of the token endpoint for the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// CookieTokenResponse is the success body of the cookie_token grant.
// Nonce is only present when a fresh unauthenticated session was minted:
// it is the handle the caller must present back through the login step.
type CookieTokenResponse struct {
	LoggedIn bool   `json:"logged_in"`
	Nonce    string `json:"nonce,omitempty"`
}

// LoginRequest marks an authorization state as authenticated.
type LoginRequest struct {
	Sub   string `json:"sub"`
	Nonce string `json:"nonce"`
}

// ErrorResponse is the standard OAuth2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// MetadataResponse is the RFC 8414 authorization server metadata document.
// DPoPSigningAlgValuesSupported is present only when key-binding is
// enabled; when disabled the field is omitted entirely.
type MetadataResponse struct {
	Issuer                        string   `json:"issuer"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	JWKSURI                       string   `json:"jwks_uri"`
	RevocationEndpoint            string   `json:"revocation_endpoint"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported"`
	DPoPSigningAlgValuesSupported []string `json:"dpop_signing_alg_values_supported,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// JWKSResponse is the body of the JWKS endpoint.
type JWKSResponse jwtx.JWKS
