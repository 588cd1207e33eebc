package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andyleap/ndirp/internal/agent"
	"github.com/andyleap/ndirp/internal/flow"
)

type OAuthAPIHandlers struct {
	flow    *flow.Flow
	manager *agent.Manager
	// complete runs an attempt to the end once it has been presented.
	complete func(a *flow.Attempt)
}

func NewOAuthAPIHandlers(f *flow.Flow, manager *agent.Manager) *OAuthAPIHandlers {
	return &OAuthAPIHandlers{
		flow:    f,
		manager: manager,
		complete: func(a *flow.Attempt) {
			// Outlives the request that started it; the user agent wait is
			// ended by a redirect, a cancel or the manager timeout.
			go a.Complete(context.Background())
		},
	}
}

// LoginHandler starts a login with the named provider
// POST /api/v1/login/{provider}
func (oh *OAuthAPIHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")

	attempt, err := oh.flow.Begin(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	oh.complete(attempt)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"attempt_id":        attempt.ID,
		"authorization_url": attempt.AuthURL,
	})
}

// CancelHandler abandons the pending user agent session
// POST /api/v1/login/cancel
func (oh *OAuthAPIHandlers) CancelHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": oh.flow.Cancel()})
}

// RedirectHandler accepts a redirect URL captured by an OS-level URL handler
// (custom scheme launch or claimed HTTPS link)
// POST /api/v1/redirect {"url": "..."} or url=... form encoded
func (oh *OAuthAPIHandlers) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	var rawURL string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var request struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		rawURL = request.URL
	} else {
		rawURL = r.FormValue("url")
	}

	if rawURL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	if !oh.manager.Resume(rawURL) {
		slog.Warn("Unhandled redirect", "url", redactURL(rawURL))
		writeJSON(w, http.StatusNotFound, map[string]bool{"handled": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"handled": true})
}

// CallbackHandler serves a redirect URI path directly, for redirect URIs that
// point at this listener. redirectURI is the configured URI the path belongs to.
func (oh *OAuthAPIHandlers) CallbackHandler(redirectURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		full := redirectURI
		if r.URL.RawQuery != "" {
			full += "?" + r.URL.RawQuery
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !oh.manager.Resume(full) {
			slog.Warn("Unhandled redirect", "url", redactURL(full))
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("No login is waiting for this redirect.\n"))
			return
		}

		w.Write([]byte("Login received. You can close this window.\n"))
	}
}

// redactURL drops the query and fragment, which carry the authorization code
// and state.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return u.String()
}
