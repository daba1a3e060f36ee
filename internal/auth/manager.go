// Package auth runs the OAuth2 Authorization Code + PKCE lifecycle against
// the Spotify accounts service: redirect, exchange, and reuse of a persisted
// bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/pkce"
	"github.com/dgellow/soporify/internal/storage"
	"golang.org/x/oauth2"
)

// Persisted keys
const (
	KeyVerifier        = "verifier"
	KeyAccessToken     = "access_token"
	KeyTokenExpiration = "token_expiration"
)

// undefinedToken is what a failed exchange in a browser leaves behind. It is
// never a credential.
const undefinedToken = "undefined"

var (
	// ErrMissingVerifier means the code cannot be exchanged because no
	// verifier was persisted by the authorization step.
	ErrMissingVerifier = errors.New("no persisted PKCE verifier; restart the authorization flow")

	// ErrExchangeFailed wraps every failure of the token endpoint call
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrNotAuthenticated is returned to token consumers when no usable token
	// is persisted.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Result is the outcome of resolving one callback
type Result struct {
	State State
	// AuthURL is set for StateNoAuth
	AuthURL string
	// AccessToken is set for StateAuthenticated
	AccessToken string
}

// Status summarizes the persisted state without exposing the token
type Status struct {
	HasToken    bool      `json:"has_token"`
	Usable      bool      `json:"usable"`
	HasVerifier bool      `json:"has_verifier"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Option configures a Manager
type Option func(*Manager)

// WithHTTPClient sets the transport used for the token exchange
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns the verifier, access token and expiration timestamp of one
// storage scope.
type Manager struct {
	store          storage.Store
	oauth          *oauth2.Config
	httpClient     *http.Client
	now            func() time.Time
	validity       time.Duration
	verifierLength int
}

// NewManager creates a manager for a public client. The store is the only
// state it keeps.
func NewManager(cfg config.SpotifyConfig, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		now:            time.Now,
		validity:       cfg.TokenValidity,
		verifierLength: cfg.VerifierLength,
	}
	if m.validity <= 0 {
		m.validity = config.DefaultTokenValidity
	}
	if m.verifierLength == 0 {
		m.verifierLength = pkce.VerifierLength
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithStore returns a manager sharing m's configuration over another store
func (m *Manager) WithStore(store storage.Store) *Manager {
	c := *m
	c.store = store
	return &c
}

// Resolve dispatches on the callback and the persisted token, then performs
// the action of the resulting state.
func (m *Manager) Resolve(ctx context.Context, cb Callback) (*Result, error) {
	if cb.Denied() {
		log.LogWarnWithFields("auth", "Authorization denied by provider", map[string]any{
			"error":       cb.Error,
			"description": cb.ErrorDescription,
		})
	}

	state := DetermineState(cb.HasCode(), m.HasUsableToken(ctx))
	log.LogDebugWithFields("auth", "Resolved authorization state", map[string]any{
		"state": state.String(),
	})

	switch state {
	case StateNoAuth:
		authURL, err := m.BeginAuthorization(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{State: StateNoAuth, AuthURL: authURL}, nil

	case StateExchanging:
		token, err := m.ExchangeCode(ctx, cb.Code)
		if err != nil {
			return nil, err
		}
		if err := m.SaveToken(ctx, token); err != nil {
			return nil, err
		}
		return &Result{State: StateAuthenticated, AccessToken: token}, nil

	default:
		token, err := m.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{State: StateAuthenticated, AccessToken: token}, nil
	}
}

// BeginAuthorization generates a new verifier, replacing any previous one,
// persists it, and returns the provider authorization URL carrying its
// challenge. No URL is returned if the verifier could not be persisted.
func (m *Manager) BeginAuthorization(ctx context.Context) (string, error) {
	pair, err := pkce.NewPair(m.verifierLength)
	if err != nil {
		return "", err
	}

	if err := m.store.Set(ctx, KeyVerifier, pair.Verifier); err != nil {
		return "", fmt.Errorf("failed to persist verifier: %w", err)
	}

	authURL := m.oauth.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
	)

	log.LogInfoWithFields("auth", "Starting authorization", map[string]any{
		"redirect": m.oauth.RedirectURL,
		"scopes":   len(m.oauth.Scopes),
	})
	return authURL, nil
}

// ExchangeCode trades an authorization code and the persisted verifier for
// an access token. The verifier is single use and is removed once the
// exchange succeeds. Nothing is retried.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (string, error) {
	verifier, err := m.store.Get(ctx, KeyVerifier)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && verifier == "") {
		return "", ErrMissingVerifier
	}
	if err != nil {
		return "", fmt.Errorf("failed to read verifier: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to exchange code for token", map[string]any{
			"code":  log.Redact(code),
			"error": err.Error(),
		})
		return "", fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	if err := m.store.Remove(ctx, KeyVerifier); err != nil {
		log.LogWarnWithFields("auth", "Failed to remove used verifier", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("auth", "Exchanged authorization code", map[string]any{
		"token_type": token.TokenType,
	})
	return token.AccessToken, nil
}

// SaveToken persists token with an expiration of now plus the validity
// window, as epoch milliseconds.
func (m *Manager) SaveToken(ctx context.Context, token string) error {
	expiresAt := m.now().Add(m.validity)

	if err := m.store.Set(ctx, KeyAccessToken, token); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	if err := m.store.Set(ctx, KeyTokenExpiration, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to persist token expiration: %w", err)
	}

	log.LogDebugWithFields("auth", "Saved access token", map[string]any{
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// TokenIsNotExpired reports whether now is strictly before the persisted
// expiration. An absent or unparseable expiration counts as expired.
func (m *Manager) TokenIsNotExpired(ctx context.Context) bool {
	expiresAt, ok := m.expiration(ctx)
	if !ok {
		return false
	}
	return m.now().UnixMilli() < expiresAt.UnixMilli()
}

// HasUsableToken reports whether a real, unexpired token is persisted
func (m *Manager) HasUsableToken(ctx context.Context) bool {
	_, err := m.AccessToken(ctx)
	return err == nil
}

// AccessToken returns the persisted token for bearer use, or
// ErrNotAuthenticated.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	token, err := m.store.Get(ctx, KeyAccessToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		log.LogWarnWithFields("auth", "Failed to read access token", map[string]any{
			"error": err.Error(),
		})
		return "", fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if token == "" || token == undefinedToken {
		return "", ErrNotAuthenticated
	}
	if !m.TokenIsNotExpired(ctx) {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

// TokenSource exposes the persisted token to oauth2-aware HTTP clients.
// There is no refresh: once the token expires every call fails with
// ErrNotAuthenticated until the user authorizes again.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.m.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	expiresAt, _ := s.m.expiration(s.ctx)
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      expiresAt,
	}, nil
}

// Status reports what is persisted
func (m *Manager) Status(ctx context.Context) Status {
	var st Status
	if token, err := m.store.Get(ctx, KeyAccessToken); err == nil && token != "" && token != undefinedToken {
		st.HasToken = true
	}
	if v, err := m.store.Get(ctx, KeyVerifier); err == nil && v != "" {
		st.HasVerifier = true
	}
	st.ExpiresAt, _ = m.expiration(ctx)
	st.Usable = st.HasToken && m.TokenIsNotExpired(ctx)
	return st
}

// Logout removes all persisted state
func (m *Manager) Logout(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyAccessToken, KeyTokenExpiration, KeyVerifier} {
		if err := m.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.LogInfoWithFields("auth", "Logged out", nil)
	return nil
}

func (m *Manager) expiration(ctx context.Context) (time.Time, bool) {
	raw, err := m.store.Get(ctx, KeyTokenExpiration)
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
