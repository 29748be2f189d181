package http

import (
	"net/http"

	"github.com/arcadialab/keygate/pkg/authsdk"
	"github.com/arcadialab/keygate/pkg/httpx"
)

// metadata assembles the RFC 8414 authorization server metadata document.
// The DPoP algorithm list appears only when key-binding is enabled.
func (r *Router) metadata() authsdk.MetadataResponse {
	meta := authsdk.MetadataResponse{
		Issuer:             r.issuer,
		TokenEndpoint:      r.TokenEndpoint,
		JWKSURI:            r.JWKSEndpoint,
		RevocationEndpoint: r.RevocationEndpoint,
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
			"cookie_token",
			"client_credentials",
		},
		TokenEndpointAuthMethods: []string{"none"},
	}
	if r.DPoP.Enabled {
		meta.DPoPSigningAlgValuesSupported = r.DPoP.Algorithms
	}
	return meta
}

// MetadataHandler serves GET /.well-known/oauth-authorization-server.
func MetadataHandler(meta authsdk.MetadataResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, meta)
	}
}
