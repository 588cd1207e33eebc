package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andyleap/ndirp/internal/models"
)

// ForwardRequest is everything the RP backend needs for the token exchange.
type ForwardRequest struct {
	Response    models.AuthorizationResponse
	Params      models.SessionParameters
	Verifier    string
	RedirectURI string
	// State and Nonce are the values carried by the authorization request;
	// empty values are not sent.
	State string
	Nonce string
}

// Form builds the form body. Code, session id and verifier are required.
func (fr *ForwardRequest) Form() (url.Values, error) {
	if fr.Response.Code == "" {
		return nil, fmt.Errorf("%w: no authorization code", models.ErrMissingSessionData)
	}
	if fr.Params.SessionID == "" {
		return nil, fmt.Errorf("%w: no session_id", models.ErrMissingSessionData)
	}
	if fr.Verifier == "" {
		return nil, fmt.Errorf("%w: no session verifier", models.ErrMissingSessionData)
	}

	form := url.Values{}
	form.Set("code", fr.Response.Code)
	form.Set("session_id", fr.Params.SessionID)
	form.Set("session_verifier", fr.Verifier)
	if fr.RedirectURI != "" {
		form.Set("redirect_uri", fr.RedirectURI)
	}
	if fr.State != "" {
		form.Set("state", fr.State)
	} else {
		slog.Debug("No state to forward")
	}
	if fr.Nonce != "" {
		form.Set("nonce", fr.Nonce)
	} else {
		slog.Debug("No nonce to forward")
	}
	return form, nil
}

// ForwardAuthorizationCode posts the authorization code to the RP backend and
// returns its response body verbatim. It is attempted once.
func (c *Client) ForwardAuthorizationCode(ctx context.Context, fr *ForwardRequest) (string, error) {
	if c.authCodeEndpoint == "" {
		return "", fmt.Errorf("%w: authCodeEndpoint is not set", models.ErrConfiguration)
	}
	u, err := url.Parse(c.authCodeEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: failed to create URL for authCodeEndpoint %q", models.ErrConfiguration, c.authCodeEndpoint)
	}

	form, err := fr.Form()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", models.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	slog.Info("Passing auth code to RP backend", "url", u.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to post auth code: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	return readText(resp)
}
