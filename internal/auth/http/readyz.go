package http

import (
	"net/http"
	"time"

	"github.com/arcadialab/keygate/internal/auth/state"
	"github.com/arcadialab/keygate/pkg/authsdk"
	"github.com/arcadialab/keygate/pkg/httpx"
	"github.com/arcadialab/keygate/pkg/jwtx"
)

// ReadyzHandler is the readiness probe: checks the state store and the
// signing keys before declaring the service able to issue tokens.
func ReadyzHandler(
	startTime time.Time,
	version string,
	states state.Store,
	keys *jwtx.KeySet,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"state_store": "ok",
			"signer":      "ok",
		}
		status := "ok"
		code := http.StatusOK

		if err := states.Ping(r.Context()); err != nil {
			checks["state_store"] = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if !keys.IsReady() {
			checks["signer"] = "error: no keys loaded"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
