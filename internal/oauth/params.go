package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andyleap/ndirp/internal/models"
)

// ChallengePlaceholder marks where the code challenge goes in the parameters
// endpoint template.
const ChallengePlaceholder = "{code_challenge}"

// ParamsQuery holds the values substituted into the parameters endpoint.
type ParamsQuery struct {
	CodeChallenge string
	Mode          models.ProviderMode
	RequirePKCE   bool
}

// SessionParametersURL expands the endpoint template for one request.
func SessionParametersURL(template string, q ParamsQuery) (string, error) {
	if template == "" {
		return "", fmt.Errorf("%w: PKCE parameters endpoint is not set", models.ErrConfiguration)
	}

	raw := template
	substituted := strings.Contains(raw, ChallengePlaceholder)
	if substituted {
		raw = strings.ReplaceAll(raw, ChallengePlaceholder, url.QueryEscape(q.CodeChallenge))
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: failed to create URL for requesting PKCE parameters from %q", models.ErrConfiguration, template)
	}

	values := u.Query()
	if !substituted {
		values.Set("code_challenge", q.CodeChallenge)
	}
	if q.Mode == models.ModeMyInfo {
		values.Set("myinfo", "true")
	}
	if q.RequirePKCE {
		values.Set("require_pkce", "true")
	}
	u.RawQuery = values.Encode()

	return u.String(), nil
}

// RequestSessionParameters asks the RP backend for the PKCE correlation
// bundle that belongs to the given challenge.
func (c *Client) RequestSessionParameters(ctx context.Context, q ParamsQuery) (*models.SessionParameters, error) {
	endpoint, err := SessionParametersURL(c.paramsEndpoint, q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", models.ErrConfiguration, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	slog.Info("Requesting PKCE parameters", "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to request PKCE parameters: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := readText(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: PKCE parameters endpoint returned %s", models.ErrNetwork, resp.Status)
	}

	slog.Debug("PKCE parameters response", "body", body)

	return ParseSessionParameters([]byte(body))
}

// ParseSessionParameters extracts the five optional string fields from a
// JSON object. Absent or non-string fields stay empty.
func ParseSessionParameters(data []byte) (*models.SessionParameters, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: PKCE parameters response: %v", models.ErrParse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: PKCE parameters response is not a JSON object", models.ErrParse)
	}

	str := func(key string) string {
		s, _ := obj[key].(string)
		return s
	}

	return &models.SessionParameters{
		SessionID:           str("session_id"),
		CodeChallenge:       str("code_challenge"),
		CodeChallengeMethod: str("code_challenge_method"),
		State:               str("state"),
		Nonce:               str("nonce"),
	}, nil
}
