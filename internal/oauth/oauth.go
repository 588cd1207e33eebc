// Package oauth talks to the relying-party backend and builds the
// authorization request sent to the identity provider.
package oauth

import (
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/andyleap/ndirp/internal/models"
)

// Client calls the two RP backend endpoints.
type Client struct {
	httpClient *http.Client
	// paramsEndpoint is the URL template used to request session parameters.
	paramsEndpoint string
	// authCodeEndpoint receives the authorization code for token exchange.
	authCodeEndpoint string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(paramsEndpoint, authCodeEndpoint string, opts ...Option) *Client {
	c := &Client{
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		paramsEndpoint:   paramsEndpoint,
		authCodeEndpoint: authCodeEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// readText reads the response body and insists on UTF-8.
func readText(resp *http.Response) (string, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", models.ErrNetwork, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: response is not valid UTF-8", models.ErrNetwork)
	}
	return string(data), nil
}
