package models

import (
	"time"
)

// SessionParameters is the correlation bundle issued by the RP backend for
// one login attempt. Every field is optional on the wire.
type SessionParameters struct {
	SessionID           string `json:"session_id,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	State               string `json:"state,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
}

// AuthState is the only persisted entity: the last authorization response and
// the request it answered.
type AuthState struct {
	Provider              string                `json:"provider"`
	ClientID              string                `json:"client_id"`
	RedirectURI           string                `json:"redirect_uri"`
	Scope                 string                `json:"scope,omitempty"`
	LastAuthorizationResp AuthorizationResponse `json:"last_authorization_response"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// Equal reports whether two states carry the same authorization result.
// UpdatedAt is ignored.
func (s *AuthState) Equal(o *AuthState) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Provider == o.Provider &&
		s.ClientID == o.ClientID &&
		s.RedirectURI == o.RedirectURI &&
		s.Scope == o.Scope &&
		s.LastAuthorizationResp == o.LastAuthorizationResp
}
