package http

import "net/http"

// Cookie names for the cookie_token flow.
const (
	sessionCookieName = "session_token"
	refreshCookieName = "refresh_token"
	accessCookieName  = "access_token"
)

// cookiePath scopes token cookies to the token endpoint so they never
// ride along on unrelated requests.
const cookiePath = "/v1/oauth2/token"

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *TokenHandler) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cookiePath,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearCookie expires a cookie by issuing an empty value with MaxAge < 0.
func (h *TokenHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
