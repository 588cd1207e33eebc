package models

// ResponseTypeCode is the only response type the sample requests.
const ResponseTypeCode = "code"

// ProviderMode selects which identity provider variant a request is built for.
type ProviderMode string

const (
	// ModeMyInfo is provider A: attribute scope, purpose markers, no nonce.
	ModeMyInfo ProviderMode = "myinfo"
	// ModeSingpass is provider B: openid scope with state and nonce.
	ModeSingpass ProviderMode = "singpass"
)

// RedirectKind tells the provider which kind of redirect URI the app uses.
type RedirectKind int

const (
	RedirectCustomScheme RedirectKind = iota
	RedirectClaimedHTTPS
)

// AuthorizationRequest represents an OIDC authorization request
type AuthorizationRequest struct {
	Issuer                string            `json:"issuer"`
	AuthorizationEndpoint string            `json:"authorization_endpoint"`
	TokenEndpoint         string            `json:"token_endpoint"`
	ClientID              string            `json:"client_id"`
	RedirectURI           string            `json:"redirect_uri"`
	Scope                 string            `json:"scope,omitempty"`
	ResponseType          string            `json:"response_type"`
	State                 string            `json:"state,omitempty"`
	Nonce                 string            `json:"nonce,omitempty"`
	CodeChallenge         string            `json:"code_challenge,omitempty"`
	CodeChallengeMethod   string            `json:"code_challenge_method,omitempty"`
	AdditionalParameters  map[string]string `json:"additional_parameters,omitempty"`
}

// AuthorizationResponse is what the provider hands back on the redirect URI
type AuthorizationResponse struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}
