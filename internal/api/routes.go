package api

import (
	"log/slog"
	"net/http"
	"net/url"
)

// Routes wires every endpoint of the local RP service. Each http(s) redirect
// URI also gets its path served so the provider can redirect here directly.
func Routes(s *Server, oh *OAuthAPIHandlers, redirectURIs []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /api/v1/status", s.StatusHandler)
	mux.HandleFunc("DELETE /api/v1/state", s.ClearStateHandler)

	mux.HandleFunc("POST /api/v1/login/{provider}", oh.LoginHandler)
	mux.HandleFunc("POST /api/v1/login/cancel", oh.CancelHandler)
	mux.HandleFunc("POST /api/v1/redirect", oh.RedirectHandler)

	seen := map[string]bool{}
	for _, raw := range redirectURIs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Path == "" {
			continue
		}
		if seen[u.Path] {
			slog.Warn("Redirect path already served", "path", u.Path, "redirect_uri", raw)
			continue
		}
		seen[u.Path] = true
		mux.HandleFunc("GET "+u.Path, oh.CallbackHandler(raw))
	}

	return LoggingMiddleware(mux)
}
