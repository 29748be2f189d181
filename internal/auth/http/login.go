package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arcadialab/keygate/internal/auth/service"
	"github.com/arcadialab/keygate/pkg/authsdk"
	"github.com/arcadialab/keygate/pkg/slogx"
)

// LoginHandler serves POST /v1/login. It marks an authorization state as
// authenticated; the actual credential check happens upstream of this
// service, which only records the outcome.
type LoginHandler struct {
	Lifecycle *service.LifecycleService
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Sub == "" || req.Nonce == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Lifecycle.Login(r.Context(), req.Sub, req.Nonce); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidGrant),
			errors.Is(err, service.ErrAlreadyLoggedIn),
			errors.Is(err, service.ErrGrantExpired):
			authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidGrant, err.Error()).WriteError(w)
		default:
			slogx.FromContext(r.Context()).Error("login failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
