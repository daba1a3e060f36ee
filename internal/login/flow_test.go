package login

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/pkce"
	"github.com/dgellow/soporify/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *storage.MemoryStore
	manager  *auth.Manager
	listener net.Listener
	cfg      config.Config

	// challenge sent to the provider, checked by the token endpoint
	challenge chan string
	pages     chan int
}

func newHarness(t *testing.T, tokenStatus int) *harness {
	t.Helper()
	h := &harness{
		store:     storage.NewMemoryStore(),
		challenge: make(chan string, 1),
		pages:     make(chan int, 1),
	}

	var expected string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		select {
		case expected = <-h.challenge:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		if tokenStatus != http.StatusOK || !pkce.Verify(r.PostForm.Get("code_verifier"), expected) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"T","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenServer.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h.listener = ln

	h.cfg = config.Default()
	h.cfg.Spotify.RedirectURI = "http://" + ln.Addr().String() + "/callback"
	h.cfg.Spotify.TokenURL = tokenServer.URL
	h.manager = auth.NewManager(h.cfg.Spotify, h.store, auth.WithHTTPClient(tokenServer.Client()))
	return h
}

// browser plays the user's browser: it approves (or denies) consent and
// follows the redirect back to the callback.
func (h *harness) browser(t *testing.T, query url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		h.challenge <- u.Query().Get("code_challenge")

		go func() {
			resp, err := http.Get(u.Query().Get("redirect_uri") + "?" + query.Encode())
			if !assert.NoError(t, err) {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			h.pages <- resp.StatusCode
		}()
		return nil
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	var out bytes.Buffer

	flow, err := NewFlow(h.manager, h.cfg,
		WithListener(h.listener),
		WithBrowser(h.browser(t, url.Values{"code": {"XYZ"}})),
		WithOutput(&out),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, flow.Run(ctx, false))

	assert.Equal(t, http.StatusOK, <-h.pages)
	assert.Contains(t, out.String(), "Opened your browser")

	token, err := h.manager.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T", token)

	_, err = h.store.Get(ctx, auth.KeyVerifier)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoginDenied(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	flow, err := NewFlow(h.manager, h.cfg,
		WithListener(h.listener),
		WithBrowser(h.browser(t, url.Values{"error": {"access_denied"}})),
		WithOutput(io.Discard),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = flow.Run(ctx, false)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), "access_denied")
	assert.Equal(t, http.StatusBadRequest, <-h.pages)
	assert.False(t, h.manager.HasUsableToken(ctx))
}

func TestLoginExchangeFails(t *testing.T) {
	h := newHarness(t, http.StatusBadRequest)

	flow, err := NewFlow(h.manager, h.cfg,
		WithListener(h.listener),
		WithBrowser(h.browser(t, url.Values{"code": {"XYZ"}})),
		WithOutput(io.Discard),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = flow.Run(ctx, false)
	assert.ErrorIs(t, err, auth.ErrExchangeFailed)
	assert.Equal(t, http.StatusBadGateway, <-h.pages)
}

func TestLoginPrintsURLWhenBrowserUnavailable(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	var out bytes.Buffer

	flow, err := NewFlow(h.manager, h.cfg,
		WithListener(h.listener),
		WithBrowser(func(string) error { return errors.New("no display") }),
		WithOutput(&out),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = flow.Run(ctx, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, out.String(), "Could not open a browser")
	assert.Contains(t, out.String(), "code_challenge_method=S256")
}

func TestLoginSkipBrowser(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	var out bytes.Buffer
	opened := false

	flow, err := NewFlow(h.manager, h.cfg,
		WithListener(h.listener),
		WithBrowser(func(string) error { opened = true; return nil }),
		WithOutput(&out),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = flow.Run(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, opened)
}

func TestCallbackWithoutCode(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	flow, err := NewFlow(h.manager, h.cfg, WithListener(h.listener))
	require.NoError(t, err)

	done := make(chan error, 1)
	rec := httptest.NewRecorder()
	flow.handleCallback(context.Background(), done)(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no authorization code")
	assert.Empty(t, done, "a stray request does not end the flow")

	rec = httptest.NewRecorder()
	flow.handleCallback(context.Background(), done)(rec, httptest.NewRequest(http.MethodPost, "/callback?code=x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewFlowNeedsPort(t *testing.T) {
	cfg := config.Default()
	cfg.Spotify.RedirectURI = "https://example.com/callback"
	_, err := NewFlow(nil, cfg)
	assert.Error(t, err)
}
