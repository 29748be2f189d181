package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/service"
	"github.com/arcadialab/keygate/pkg/authsdk"
	"github.com/arcadialab/keygate/pkg/dpopx"
	"github.com/arcadialab/keygate/pkg/httpx"
	"github.com/arcadialab/keygate/pkg/slogx"
)

// TokenHandler serves POST /v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
// When key-binding is enabled, every request must carry exactly one DPoP
// header; the derived thumbprint flows into the lifecycle operations.
type TokenHandler struct {
	Lifecycle     *service.LifecycleService
	DPoP          *dpopx.Validator
	TokenEndpoint string
	SecureCookies bool
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Validate the proof-of-possession header before any grant work.
	// With binding disabled the thumbprint comes back empty and nothing
	// downstream binds.
	jkt, err := h.DPoP.Validate(r.Header.Values(dpopx.HeaderName))
	if err != nil {
		writeDPoPError(w, err)
		return
	}

	// 4. Handle the grant type
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, r.Form, jkt)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form, jkt)
	case "cookie_token":
		h.handleCookieTokenGrant(w, r, r.Form, jkt)
	case "client_credentials":
		// Recognised but deliberately unimplemented
		authsdk.ErrNotImplemented.WriteError(w)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handleAuthorizationCodeGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
	jkt string,
) {
	ctx := r.Context()

	code := strings.TrimSpace(form.Get("code"))
	clientID := strings.TrimSpace(form.Get("client_id"))
	if code == "" || clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Lifecycle.ExchangeAuthorizationCode(ctx, clientID, code, jkt)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	writeTokenPair(w, pair)
}

func (h *TokenHandler) handleRefreshGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
	jkt string,
) {
	ctx := r.Context()

	refresh := form.Get("refresh_token")
	clientID := strings.TrimSpace(form.Get("client_id"))
	if refresh == "" || clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Lifecycle.RotateRefreshToken(ctx, refresh, jkt)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	writeTokenPair(w, pair)
}

func (h *TokenHandler) handleCookieTokenGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
	jkt string,
) {
	ctx := r.Context()

	clientID := strings.TrimSpace(form.Get("client_id"))
	if clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.Lifecycle.CookieGrant(ctx, clientID,
		cookieValue(r, sessionCookieName),
		cookieValue(r, refreshCookieName),
		jkt,
	)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	if !res.LoggedIn {
		h.setCookie(w, sessionCookieName, res.SessionToken)
		httpx.WriteJSON(w, http.StatusOK, authsdk.CookieTokenResponse{
			LoggedIn: false,
			Nonce:    res.Nonce,
		})
		return
	}

	h.setCookie(w, accessCookieName, res.Pair.AccessToken)
	h.setCookie(w, refreshCookieName, res.Pair.RefreshToken)
	h.clearCookie(w, sessionCookieName)
	httpx.WriteJSON(w, http.StatusOK, authsdk.CookieTokenResponse{LoggedIn: true})
}

// RevokeHandler serves POST /v1/oauth2/revoke. Revocation is a declared
// non-feature: tokens are superseded by rotation, never recalled.
func RevokeHandler(w http.ResponseWriter, _ *http.Request) {
	authsdk.ErrNotImplemented.WriteError(w)
}

func writeTokenPair(w http.ResponseWriter, pair *domain.TokenPair) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}

// writeLifecycleError maps service errors onto OAuth2 error responses.
// Lifecycle failures surface their own message as the description.
func writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrCodeAlreadyUsed),
		errors.Is(err, service.ErrNotLoggedIn),
		errors.Is(err, service.ErrGrantExpired),
		errors.Is(err, service.ErrKeyBindingMismatch),
		errors.Is(err, service.ErrAlreadyLoggedIn):
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidGrant, err.Error()).WriteError(w)
	case errors.Is(err, service.ErrInvalidGrant):
		authsdk.ErrInvalidGrant.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("token grant failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// writeDPoPError maps proof validation failures onto 400 responses.
func writeDPoPError(w http.ResponseWriter, err error) {
	authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error()).WriteError(w)
}
