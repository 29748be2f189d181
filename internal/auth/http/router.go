// Package http wires the token-issuance service onto the standard mux.
// Handlers stay thin: they parse, dispatch to the lifecycle service, and
// serialize; every lifecycle decision lives in the service layer.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arcadialab/keygate/internal/auth/service"
	"github.com/arcadialab/keygate/internal/auth/state"
	"github.com/arcadialab/keygate/pkg/dpopx"
	"github.com/arcadialab/keygate/pkg/httpx"
	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/arcadialab/keygate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	states       state.Store
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Lifecycle *service.LifecycleService
	DPoP      *dpopx.Validator

	// Endpoints as absolute URLs for the metadata document.
	TokenEndpoint      string
	JWKSEndpoint       string
	RevocationEndpoint string

	// SecureCookies controls the Secure attribute on issued cookies.
	SecureCookies bool
}

func NewRouter(
	keys *jwtx.KeySet,
	states state.Store,
	issuer, buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		states:       states,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerWellKnown()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	tokenHandler := &TokenHandler{
		Lifecycle:     r.Lifecycle,
		DPoP:          r.DPoP,
		TokenEndpoint: r.TokenEndpoint,
		SecureCookies: r.SecureCookies,
	}

	// POST /token - strict rate limit (token issuance)
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /login - strict rate limit (authentication attempts)
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(&LoginHandler{Lifecycle: r.Lifecycle},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /revoke - recognised but deliberately unimplemented
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(http.HandlerFunc(RevokeHandler),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerWellKnown() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	r.Mux.Handle("GET /.well-known/oauth-authorization-server",
		httpx.Chain(MetadataHandler(r.metadata()),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.states, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
