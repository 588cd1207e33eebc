// Package agent drives the external user agent (the system browser) and
// correlates the redirect that comes back with the login that started it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andyleap/ndirp/internal/models"
)

// ErrCancelled is wrapped together with models.ErrUserAgent when the user or
// the caller abandons a pending session.
var ErrCancelled = errors.New("authorization cancelled")

// Manager owns the single pending user agent session.
type Manager struct {
	launcher Launcher
	timeout  time.Duration

	mu      sync.Mutex
	pending *Pending
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithTimeout cancels a pending session that has not been resumed within d.
// Zero means wait for as long as the user takes.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

func NewManager(launcher Launcher, opts ...ManagerOption) *Manager {
	m := &Manager{launcher: launcher}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pending is a presented authorization request waiting for its redirect.
type Pending struct {
	request  *models.AuthorizationRequest
	redirect *url.URL
	done     chan struct{}
	once     sync.Once
	timer    *time.Timer

	resp models.AuthorizationResponse
	err  error
}

// Request returns the authorization request this session presented.
func (p *Pending) Request() *models.AuthorizationRequest {
	return p.request
}

// Done is closed once the session has a result.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

func (p *Pending) resolve(resp models.AuthorizationResponse, err error) {
	p.once.Do(func() {
		p.resp = resp
		p.err = err
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
	})
}

// Present opens authURL in the user agent and occupies the session slot until
// the redirect arrives or the session is cancelled. Only one session may be
// pending at a time.
func (m *Manager) Present(ctx context.Context, req *models.AuthorizationRequest, authURL string) (*Pending, error) {
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil || redirect.Scheme == "" {
		return nil, fmt.Errorf("%w: failed to create URL for redirect URI %q", models.ErrConfiguration, req.RedirectURI)
	}

	p := &Pending{
		request:  req,
		redirect: redirect,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.pending != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: an authorization session is already pending", models.ErrConflict)
	}
	m.pending = p
	if m.timeout > 0 {
		p.timer = time.AfterFunc(m.timeout, func() {
			m.finish(p, models.AuthorizationResponse{}, fmt.Errorf("%w: no redirect received within %s", models.ErrUserAgent, m.timeout))
		})
	}
	m.mu.Unlock()

	slog.Info("Presenting authorization request", "issuer", req.Issuer, "scope", req.Scope, "redirect_uri", req.RedirectURI)

	if err := m.launcher.Launch(ctx, authURL); err != nil {
		err = fmt.Errorf("%w: failed to launch user agent: %v", models.ErrUserAgent, err)
		m.finish(p, models.AuthorizationResponse{}, err)
		return nil, err
	}

	return p, nil
}

// Resume hands a redirect URL to the pending session. It reports false when
// no session is pending or the URL is not addressed to its redirect URI; the
// caller should then treat the URL as unhandled.
func (m *Manager) Resume(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		slog.Warn("Ignoring unparseable redirect", "error", err)
		return false
	}

	m.mu.Lock()
	p := m.pending
	if p == nil || !sameEndpoint(p.redirect, u) {
		m.mu.Unlock()
		return false
	}
	m.pending = nil
	m.mu.Unlock()

	resp, err := responseFromRedirect(p.request, u)
	p.resolve(resp, err)
	return true
}

// Cancel abandons the pending session, as when the user dismisses the
// browser. It reports whether a session was pending.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	p := m.pending
	m.pending = nil
	m.mu.Unlock()

	if p == nil {
		return false
	}
	p.resolve(models.AuthorizationResponse{}, fmt.Errorf("%w: %w", models.ErrUserAgent, ErrCancelled))
	return true
}

// Busy reports whether a session is pending.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Wait blocks until the session resolves. If ctx ends first the session is
// cancelled.
func (m *Manager) Wait(ctx context.Context, p *Pending) (models.AuthorizationResponse, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		m.finish(p, models.AuthorizationResponse{}, fmt.Errorf("%w: %w: %v", models.ErrUserAgent, ErrCancelled, ctx.Err()))
		<-p.done
	}
	return p.resp, p.err
}

func (m *Manager) finish(p *Pending, resp models.AuthorizationResponse, err error) {
	m.mu.Lock()
	if m.pending == p {
		m.pending = nil
	}
	m.mu.Unlock()
	p.resolve(resp, err)
}

func sameEndpoint(want, got *url.URL) bool {
	return strings.EqualFold(want.Scheme, got.Scheme) &&
		strings.EqualFold(want.Host, got.Host) &&
		strings.TrimSuffix(want.Path, "/") == strings.TrimSuffix(got.Path, "/")
}

func responseFromRedirect(req *models.AuthorizationRequest, u *url.URL) (models.AuthorizationResponse, error) {
	q := u.Query()

	if code := q.Get("error"); code != "" {
		return models.AuthorizationResponse{}, fmt.Errorf("%w: provider returned %s: %s", models.ErrUserAgent, code, q.Get("error_description"))
	}

	resp := models.AuthorizationResponse{
		Code:  q.Get("code"),
		State: q.Get("state"),
	}
	if req.State != "" && resp.State != req.State {
		return models.AuthorizationResponse{}, fmt.Errorf("%w: state mismatch in redirect", models.ErrUserAgent)
	}
	if resp.Code == "" {
		return models.AuthorizationResponse{}, fmt.Errorf("%w: authorization code is missing in redirect", models.ErrUserAgent)
	}
	return resp, nil
}
