package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/andyleap/ndirp/internal/models"
	"github.com/andyleap/ndirp/internal/pkce"
	"github.com/andyleap/ndirp/internal/provider"
	"golang.org/x/oauth2"
)

const (
	ScopeOpenID = "openid"

	// DefaultAppLaunchKey and DefaultAppLinkValue identify this app to the
	// provider so it can deep link back after login.
	DefaultAppLaunchKey = "app_launch_url"
	DefaultAppLinkValue = "sg.gov.singpass.app"
)

// RequestOptions carries the per-attempt switches of the builder.
type RequestOptions struct {
	PKCEEnabled  bool
	RedirectURI  string
	RedirectKind models.RedirectKind
	// AppLaunchKey and AppLinkValue default to DefaultAppLaunchKey and
	// DefaultAppLinkValue when empty.
	AppLaunchKey string
	AppLinkValue string
}

// BuildAuthorizationRequest assembles the authorization request for one
// attempt. It does no I/O.
func BuildAuthorizationRequest(p *provider.Profile, params models.SessionParameters, opts RequestOptions) (*models.AuthorizationRequest, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no provider profile", models.ErrConfiguration)
	}

	ep := p.EndpointsFor(opts.PKCEEnabled)
	for _, f := range []struct{ name, raw string }{
		{"authorizationEndpoint", ep.AuthorizationEndpoint},
		{"tokenEndpoint", ep.TokenEndpoint},
		{"issuer", ep.Issuer},
		{"redirectURI", opts.RedirectURI},
	} {
		if err := requireURL(f.name, f.raw); err != nil {
			return nil, err
		}
	}
	if ep.ClientID == "" {
		return nil, fmt.Errorf("%w: clientID is not set", models.ErrConfiguration)
	}

	launchKey := opts.AppLaunchKey
	if launchKey == "" {
		launchKey = DefaultAppLaunchKey
	}
	linkValue := opts.AppLinkValue
	if linkValue == "" {
		linkValue = DefaultAppLinkValue
	}

	req := &models.AuthorizationRequest{
		Issuer:                ep.Issuer,
		AuthorizationEndpoint: ep.AuthorizationEndpoint,
		TokenEndpoint:         ep.TokenEndpoint,
		ClientID:              ep.ClientID,
		RedirectURI:           opts.RedirectURI,
		ResponseType:          models.ResponseTypeCode,
		CodeChallenge:         params.CodeChallenge,
		CodeChallengeMethod:   params.CodeChallengeMethod,
		AdditionalParameters:  map[string]string{launchKey: linkValue},
	}
	if req.CodeChallenge != "" && req.CodeChallengeMethod == "" {
		req.CodeChallengeMethod = pkce.MethodS256
	}

	switch p.Mode {
	case models.ModeMyInfo:
		if opts.PKCEEnabled {
			req.Scope = p.AttributeScope
			setIfNotEmpty(req.AdditionalParameters, "purpose_id", p.PurposeID)
		} else {
			// The non-PKCE MyInfo flow round-trips state; nonce is never sent.
			req.State = params.State
			setIfNotEmpty(req.AdditionalParameters, "purpose", p.Purpose)
			setIfNotEmpty(req.AdditionalParameters, "attributes", p.Attributes)
		}
	case models.ModeSingpass:
		req.Scope = ScopeOpenID
		req.State = params.State
		req.Nonce = params.Nonce
		if opts.RedirectKind != models.RedirectCustomScheme {
			req.AdditionalParameters["redirect_uri_https_type"] = "app_claimed_https"
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider mode %q", models.ErrConfiguration, p.Mode)
	}

	return req, nil
}

// AuthorizationURL renders the request as the URL the user agent opens.
func AuthorizationURL(req *models.AuthorizationRequest) string {
	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Scopes:      strings.Fields(req.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  req.AuthorizationEndpoint,
			TokenURL: req.TokenEndpoint,
		},
	}

	var opts []oauth2.AuthCodeOption
	if req.Nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", req.Nonce))
	}
	if req.CodeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", req.CodeChallengeMethod))
	}
	for k, v := range req.AdditionalParameters {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return cfg.AuthCodeURL(req.State, opts...)
}

func requireURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s is not set", models.ErrConfiguration, name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %s %q is not a valid URL", models.ErrConfiguration, name, raw)
	}
	return nil
}

func setIfNotEmpty(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
