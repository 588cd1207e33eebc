// Package flow runs one relying-party login attempt end to end: session
// verifier, backend PKCE parameters, authorization request, user agent,
// redirect, auth state, and forwarding the code to the backend.
package flow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/andyleap/ndirp/internal/agent"
	"github.com/andyleap/ndirp/internal/authstate"
	"github.com/andyleap/ndirp/internal/models"
	"github.com/andyleap/ndirp/internal/oauth"
	"github.com/andyleap/ndirp/internal/pkce"
	"github.com/andyleap/ndirp/internal/provider"
	"github.com/google/uuid"
)

const (
	DefaultAuthCodeStatus = "No authCode obtained yet!"
	DefaultResponseStatus = "No idToken obtained yet!"
)

// ErrUnknownProvider is returned by Begin for a provider name that has no profile.
var ErrUnknownProvider = errors.New("unknown provider")

// Config holds the switches shared by every attempt.
type Config struct {
	PKCEEnabled bool
	// RedirectURIs lists the custom scheme redirect first and the claimed
	// HTTPS redirect second; SelectedRedirect picks one.
	RedirectURIs     []string
	SelectedRedirect int
	AppLaunchKey     string
	AppLinkValue     string
}

// RedirectURI returns the selected redirect URI and its kind.
func (c *Config) RedirectURI() (string, models.RedirectKind, error) {
	if c.SelectedRedirect < 0 || c.SelectedRedirect >= len(c.RedirectURIs) {
		return "", 0, fmt.Errorf("%w: redirect index %d out of range (%d configured)", models.ErrConfiguration, c.SelectedRedirect, len(c.RedirectURIs))
	}
	kind := models.RedirectCustomScheme
	if c.SelectedRedirect != 0 {
		kind = models.RedirectClaimedHTTPS
	}
	return c.RedirectURIs[c.SelectedRedirect], kind, nil
}

// Status mirrors the two status lines shown to the user.
type Status struct {
	AttemptID string `json:"attempt_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	AuthCode  string `json:"auth_code_status"`
	Response  string `json:"response_status"`
}

type Flow struct {
	cfg       Config
	providers *provider.Registry
	client    *oauth.Client
	agent     *agent.Manager
	keeper    *authstate.Keeper
	random    io.Reader
	now       func() time.Time

	// begin is held while an attempt is being started.
	begin sync.Mutex

	mu      sync.Mutex
	status  Status
	current *Attempt
}

// Option customizes a Flow.
type Option func(*Flow)

// WithRandom replaces crypto/rand as the verifier source.
func WithRandom(r io.Reader) Option {
	return func(f *Flow) {
		f.random = r
	}
}

func New(cfg Config, providers *provider.Registry, client *oauth.Client, manager *agent.Manager, keeper *authstate.Keeper, opts ...Option) *Flow {
	f := &Flow{
		cfg:       cfg,
		providers: providers,
		client:    client,
		agent:     manager,
		keeper:    keeper,
		random:    rand.Reader,
		now:       time.Now,
		status: Status{
			AuthCode: DefaultAuthCodeStatus,
			Response: DefaultResponseStatus,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attempt is one login. Its verifier and session parameters live only here.
type Attempt struct {
	ID       string
	Provider *provider.Profile
	Params   models.SessionParameters
	Request  *models.AuthorizationRequest
	AuthURL  string

	verifier *pkce.Verifier
	pending  *agent.Pending
	flow     *Flow
}

// Begin runs the attempt up to presenting the authorization request. It
// replaces any previous attempt; it fails with models.ErrConflict while a
// user agent session is still pending.
func (f *Flow) Begin(ctx context.Context, providerName string) (*Attempt, error) {
	p, ok := f.providers.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	if !f.begin.TryLock() {
		return nil, fmt.Errorf("%w: another login is starting", models.ErrConflict)
	}
	defer f.begin.Unlock()
	if f.agent.Busy() {
		return nil, fmt.Errorf("%w: an authorization session is already pending", models.ErrConflict)
	}

	a := &Attempt{
		ID:       uuid.NewString(),
		Provider: p,
		flow:     f,
	}

	f.mu.Lock()
	f.current = a
	f.status.AttemptID = a.ID
	f.status.Provider = p.Name
	f.status.AuthCode = "Getting PKCE params..."
	f.mu.Unlock()

	logger := slog.With("attempt", a.ID, "provider", p.Name)

	verifier, err := pkce.NewVerifier(f.random)
	if err != nil {
		return nil, f.fail(a, &f.status.AuthCode, "failed to generate session verifier", err)
	}
	a.verifier = verifier
	challenge := verifier.Challenge()
	logger.Debug("Generated session verifier", "verifier", verifier.String(), "challenge", challenge)

	params, err := f.client.RequestSessionParameters(ctx, oauth.ParamsQuery{
		CodeChallenge: challenge,
		Mode:          p.Mode,
		RequirePKCE:   f.cfg.PKCEEnabled,
	})
	if err != nil {
		return nil, f.fail(a, &f.status.AuthCode, "failed to get PKCE parameters", err)
	}
	a.Params = *params
	logger.Debug("Received PKCE parameters", "session_id", params.SessionID, "code_challenge_method", params.CodeChallengeMethod)

	redirectURI, kind, err := f.cfg.RedirectURI()
	if err != nil {
		return nil, f.fail(a, &f.status.AuthCode, "failed to select redirect URI", err)
	}

	req, err := oauth.BuildAuthorizationRequest(p, a.Params, oauth.RequestOptions{
		PKCEEnabled:  f.cfg.PKCEEnabled,
		RedirectURI:  redirectURI,
		RedirectKind: kind,
		AppLaunchKey: f.cfg.AppLaunchKey,
		AppLinkValue: f.cfg.AppLinkValue,
	})
	if err != nil {
		return nil, f.fail(a, &f.status.AuthCode, "failed to construct authorization request", err)
	}
	a.Request = req
	a.AuthURL = oauth.AuthorizationURL(req)
	logger.Info("Initiating authorization request", "scope", req.Scope)

	f.setStatus(a, &f.status.AuthCode, "Waiting for authCode...")

	pending, err := f.agent.Present(ctx, req, a.AuthURL)
	if err != nil {
		return nil, f.fail(a, &f.status.AuthCode, "failed to present authorization request", err)
	}
	a.pending = pending

	return a, nil
}

// Complete waits for the redirect, records the auth state and forwards the
// code to the RP backend. It returns the backend's response body.
func (a *Attempt) Complete(ctx context.Context) (string, error) {
	f := a.flow
	logger := slog.With("attempt", a.ID, "provider", a.Provider.Name)

	if a.pending == nil {
		return "", fmt.Errorf("%w: attempt was never presented", models.ErrUserAgent)
	}

	resp, err := f.agent.Wait(ctx, a.pending)
	if err != nil {
		return "", f.fail(a, &f.status.AuthCode, "authorization failed", err)
	}

	st := &models.AuthState{
		Provider:              a.Provider.Name,
		ClientID:              a.Request.ClientID,
		RedirectURI:           a.Request.RedirectURI,
		Scope:                 a.Request.Scope,
		LastAuthorizationResp: resp,
		UpdatedAt:             f.now(),
	}
	if _, err := f.keeper.Set(ctx, st); err != nil {
		logger.Error("Failed to persist auth state", "error", err)
	}

	f.setStatus(a, &f.status.AuthCode, "AuthCode: "+resp.Code)
	logger.Info("Received authorization code")

	if !f.isCurrent(a) {
		logger.Warn("Attempt superseded; authorization code not forwarded")
		return "", fmt.Errorf("%w: attempt %s was superseded", models.ErrConflict, a.ID)
	}

	f.setStatus(a, &f.status.Response, "Sending authCode back to backend and waiting for response...")

	var verifier string
	if a.verifier != nil {
		verifier = a.verifier.String()
	}
	body, err := f.client.ForwardAuthorizationCode(ctx, &oauth.ForwardRequest{
		Response:    resp,
		Params:      a.Params,
		Verifier:    verifier,
		RedirectURI: a.Request.RedirectURI,
		State:       a.Request.State,
		Nonce:       a.Request.Nonce,
	})
	a.verifier = nil
	if err != nil {
		return "", f.fail(a, &f.status.Response, "failed to forward authorization code", err)
	}

	f.setStatus(a, &f.status.Response, "Access Token: "+body)
	logger.Info("RP backend accepted authorization code")

	return body, nil
}

// Cancel abandons a pending user agent session, if any.
func (f *Flow) Cancel() bool {
	return f.agent.Cancel()
}

// Status returns a snapshot of the status lines.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// AuthState returns the last recorded authorization result, or nil.
func (f *Flow) AuthState() *models.AuthState {
	return f.keeper.Current()
}

// ClearState removes the persisted auth state and resets the status lines.
func (f *Flow) ClearState(ctx context.Context) error {
	if err := f.keeper.Clear(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = Status{
		AuthCode: DefaultAuthCodeStatus,
		Response: DefaultResponseStatus,
	}
	return nil
}

func (f *Flow) isCurrent(a *Attempt) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current == a
}

// setStatus writes a status line for a; lines of superseded attempts are dropped.
func (f *Flow) setStatus(a *Attempt, line *string, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == a {
		*line = text
	}
}

func (f *Flow) fail(a *Attempt, line *string, msg string, err error) error {
	slog.Error("Login attempt failed", "attempt", a.ID, "provider", a.Provider.Name, "step", msg, "error", err)
	f.setStatus(a, line, "Error: "+err.Error())
	return fmt.Errorf("%s: %w", msg, err)
}
