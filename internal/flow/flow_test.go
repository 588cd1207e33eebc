package flow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/andyleap/ndirp/internal/agent"
	"github.com/andyleap/ndirp/internal/authstate"
	"github.com/andyleap/ndirp/internal/models"
	"github.com/andyleap/ndirp/internal/oauth"
	"github.com/andyleap/ndirp/internal/pkce"
	"github.com/andyleap/ndirp/internal/provider"
	"github.com/andyleap/ndirp/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	customRedirect = "sg.gov.singpass.app://ndisample.gov.sg/rp/sample"
	httpsRedirect  = "https://app.singpass.gov.sg/rp/sample"
)

type backend struct {
	mu         sync.Mutex
	paramsBody string
	challenges []string
	forms      []url.Values
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pkce", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.challenges = append(b.challenges, r.URL.Query().Get("code_challenge"))
		body := b.paramsBody
		b.mu.Unlock()
		w.Write([]byte(body))
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		b.mu.Lock()
		b.forms = append(b.forms, r.PostForm)
		b.mu.Unlock()
		w.Write([]byte("token-for-" + r.PostForm.Get("code")))
	})
	return mux
}

type harness struct {
	flow     *Flow
	manager  *agent.Manager
	store    *storage.MemoryStorage
	backend  *backend
	launched []string
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		store: storage.NewMemoryStorage(),
		backend: &backend{
			paramsBody: `{"session_id":"s1","code_challenge":"c1","code_challenge_method":"S256","state":"st1","nonce":"n1"}`,
		},
	}
	srv := httptest.NewServer(h.backend.handler())
	t.Cleanup(srv.Close)

	reg, err := provider.Default()
	require.NoError(t, err)

	h.manager = agent.NewManager(agent.LauncherFunc(func(ctx context.Context, authURL string) error {
		h.launched = append(h.launched, authURL)
		return nil
	}))
	keeper, err := authstate.NewKeeper(h.store)
	require.NoError(t, err)

	if cfg.RedirectURIs == nil {
		cfg.RedirectURIs = []string{customRedirect, httpsRedirect}
	}
	client := oauth.NewClient(srv.URL+"/pkce?code_challenge={code_challenge}", srv.URL+"/token")
	h.flow = New(cfg, reg, client, h.manager, keeper, opts...)
	return h
}

func TestSingpassLogin(t *testing.T) {
	h := newHarness(t, Config{PKCEEnabled: true}, WithRandom(bytes.NewReader(make([]byte, pkce.VerifierSize))))
	ctx := context.Background()

	a, err := h.flow.Begin(ctx, "singpass")
	require.NoError(t, err)
	require.Len(t, h.launched, 1)
	assert.Equal(t, a.AuthURL, h.launched[0])
	assert.Equal(t, "Waiting for authCode...", h.flow.Status().AuthCode)

	zeroVerifier := strings.Repeat("A", 86)
	assert.Equal(t, []string{pkce.DeriveChallenge(zeroVerifier)}, h.backend.challenges)
	assert.Equal(t, models.SessionParameters{
		SessionID: "s1", CodeChallenge: "c1", CodeChallengeMethod: "S256", State: "st1", Nonce: "n1",
	}, a.Params)

	u, err := url.Parse(a.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, "c1", u.Query().Get("code_challenge"))
	assert.Equal(t, "st1", u.Query().Get("state"))

	require.True(t, h.manager.Resume(customRedirect+"?code=abc123&state=st1"))

	body, err := a.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-for-abc123", body)

	require.Len(t, h.backend.forms, 1)
	assert.Equal(t, url.Values{
		"code":             {"abc123"},
		"session_id":       {"s1"},
		"session_verifier": {zeroVerifier},
		"redirect_uri":     {customRedirect},
		"state":            {"st1"},
		"nonce":            {"n1"},
	}, h.backend.forms[0])

	st := h.flow.Status()
	assert.Equal(t, a.ID, st.AttemptID)
	assert.Equal(t, "AuthCode: abc123", st.AuthCode)
	assert.Equal(t, "Access Token: token-for-abc123", st.Response)

	state := h.flow.AuthState()
	require.NotNil(t, state)
	assert.Equal(t, "abc123", state.LastAuthorizationResp.Code)
	assert.Equal(t, "singpass", state.Provider)

	blob, err := h.store.GetState(ctx, authstate.DefaultNamespace, authstate.DefaultKey)
	require.NoError(t, err)
	assert.NotNil(t, blob)
}

func TestMyInfoLoginForwardsStateOnly(t *testing.T) {
	h := newHarness(t, Config{PKCEEnabled: false})
	ctx := context.Background()

	a, err := h.flow.Begin(ctx, "myinfo")
	require.NoError(t, err)
	assert.Equal(t, "STG2-MYINFO-DEMO-APP", a.Request.ClientID)
	assert.Empty(t, a.Request.Nonce)

	require.True(t, h.manager.Resume(customRedirect+"?code=xyz&state=st1"))
	_, err = a.Complete(ctx)
	require.NoError(t, err)

	require.Len(t, h.backend.forms, 1)
	form := h.backend.forms[0]
	assert.Equal(t, "st1", form.Get("state"))
	assert.False(t, form.Has("nonce"))
}

func TestMissingSessionIDStopsForwarding(t *testing.T) {
	h := newHarness(t, Config{PKCEEnabled: true})
	h.backend.paramsBody = `{"code_challenge":"c1"}`
	ctx := context.Background()

	a, err := h.flow.Begin(ctx, "singpass")
	require.NoError(t, err)

	require.True(t, h.manager.Resume(customRedirect+"?code=abc123"))
	_, err = a.Complete(ctx)
	assert.ErrorIs(t, err, models.ErrMissingSessionData)
	assert.Empty(t, h.backend.forms)
	assert.True(t, strings.HasPrefix(h.flow.Status().Response, "Error: "))
	assert.Equal(t, "AuthCode: abc123", h.flow.Status().AuthCode)
}

func TestBeginErrors(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		h := newHarness(t, Config{})
		_, err := h.flow.Begin(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("rng failure", func(t *testing.T) {
		h := newHarness(t, Config{}, WithRandom(bytes.NewReader(nil)))
		_, err := h.flow.Begin(context.Background(), "singpass")
		assert.ErrorIs(t, err, models.ErrRandomGeneration)
		assert.Empty(t, h.backend.challenges)
		assert.Contains(t, h.flow.Status().AuthCode, "Error: ")
	})

	t.Run("bad params body", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.backend.paramsBody = "not json"
		_, err := h.flow.Begin(context.Background(), "singpass")
		assert.ErrorIs(t, err, models.ErrParse)
		assert.Empty(t, h.launched)
		assert.False(t, h.manager.Busy())
	})

	t.Run("redirect out of range", func(t *testing.T) {
		h := newHarness(t, Config{SelectedRedirect: 5})
		_, err := h.flow.Begin(context.Background(), "singpass")
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})

	t.Run("pending session", func(t *testing.T) {
		h := newHarness(t, Config{})
		_, err := h.flow.Begin(context.Background(), "singpass")
		require.NoError(t, err)
		_, err = h.flow.Begin(context.Background(), "myinfo")
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestHTTPSRedirectMarker(t *testing.T) {
	h := newHarness(t, Config{PKCEEnabled: true, SelectedRedirect: 1})
	a, err := h.flow.Begin(context.Background(), "singpass")
	require.NoError(t, err)
	assert.Equal(t, httpsRedirect, a.Request.RedirectURI)
	assert.Equal(t, "app_claimed_https", a.Request.AdditionalParameters["redirect_uri_https_type"])
}

func TestCancelledAttempt(t *testing.T) {
	h := newHarness(t, Config{})
	a, err := h.flow.Begin(context.Background(), "singpass")
	require.NoError(t, err)

	assert.True(t, h.flow.Cancel())
	_, err = a.Complete(context.Background())
	assert.ErrorIs(t, err, models.ErrUserAgent)
	assert.True(t, errors.Is(err, agent.ErrCancelled))
	assert.Nil(t, h.flow.AuthState())
	assert.Empty(t, h.backend.forms)

	// The user may start over.
	_, err = h.flow.Begin(context.Background(), "singpass")
	assert.NoError(t, err)
}

func TestSupersededAttemptDoesNotForward(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.flow.Begin(ctx, "singpass")
	require.NoError(t, err)
	require.True(t, h.manager.Resume(customRedirect+"?code=one&state=st1"))

	second, err := h.flow.Begin(ctx, "singpass")
	require.NoError(t, err)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err = first.Complete(ctx)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Empty(t, h.backend.forms)
	assert.Equal(t, second.ID, h.flow.Status().AttemptID)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "authorization code not forwarded")
	assert.Contains(t, logs.String(), "attempt="+first.ID)
}

func TestFailedBeginSupersedesEarlierAttempt(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.flow.Begin(ctx, "singpass")
	require.NoError(t, err)
	require.True(t, h.manager.Resume(customRedirect+"?code=one&state=st1"))

	h.backend.mu.Lock()
	h.backend.paramsBody = `[1]`
	h.backend.mu.Unlock()

	_, err = h.flow.Begin(ctx, "singpass")
	require.ErrorIs(t, err, models.ErrParse)

	_, err = first.Complete(ctx)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Empty(t, h.backend.forms)
	assert.Contains(t, h.flow.Status().AuthCode, "Error: ")
}

func TestClearState(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	a, err := h.flow.Begin(ctx, "singpass")
	require.NoError(t, err)
	require.True(t, h.manager.Resume(customRedirect+"?code=abc123&state=st1"))
	_, err = a.Complete(ctx)
	require.NoError(t, err)

	require.NoError(t, h.flow.ClearState(ctx))
	assert.Nil(t, h.flow.AuthState())
	assert.Equal(t, Status{AuthCode: DefaultAuthCodeStatus, Response: DefaultResponseStatus}, h.flow.Status())

	blob, err := h.store.GetState(ctx, authstate.DefaultNamespace, authstate.DefaultKey)
	require.NoError(t, err)
	assert.Nil(t, blob)
}
