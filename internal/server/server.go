// Package server hosts the redirect URI: the page the provider sends the
// browser back to, plus a small JSON API for the same browser session.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/crypto"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/spotify"
	"github.com/dgellow/soporify/internal/storage"
	"github.com/dgellow/soporify/internal/urlutil"
	"golang.org/x/oauth2"
)

const (
	// LogoutPath receives the logout form
	LogoutPath = "/logout"

	DefaultSessionTTL = 24 * time.Hour
)

// ClientFactory builds an API client for one session's token
type ClientFactory func(ts oauth2.TokenSource) *spotify.Client

// Options wires the web host
type Options struct {
	Config  config.Config
	Manager *auth.Manager
	// Store is shared by all sessions; each session sees a scoped view
	Store storage.Store
	// NewClient defaults to a client on the configured API base URL
	NewClient ClientFactory
	// SessionKey signs session cookies and CSRF tokens. A random key is
	// used when empty, so sessions do not survive a restart.
	SessionKey []byte
}

// NewHandler builds the routes of the web host
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Manager == nil || opts.Store == nil {
		return nil, fmt.Errorf("manager and store are required")
	}

	key := opts.SessionKey
	if len(key) == 0 {
		random, err := crypto.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		key = random
		log.LogWarnWithFields("server", "No server.sessionSecret configured; sessions end when the server stops", nil)
	}

	newClient := opts.NewClient
	if newClient == nil {
		spotifyCfg := opts.Config.Spotify
		newClient = func(ts oauth2.TokenSource) *spotify.Client {
			return spotify.NewClient(ts,
				spotify.WithBaseURL(spotifyCfg.APIBaseURL),
				spotify.WithEmbedBaseURL(spotifyCfg.EmbedBaseURL),
			)
		}
	}

	ttl := SessionTTL(opts.Config)

	h := &Handlers{
		manager:   opts.Manager,
		store:     opts.Store,
		newClient: newClient,
		csrf:      crypto.NewCSRFProtection(key, ttl),
		pagePath:  opts.Config.RedirectPath(),
		realm:     "soporify",
	}
	sess := &sessions{
		key:    key,
		ttl:    ttl,
		secure: strings.HasPrefix(opts.Config.Spotify.RedirectURI, "https://"),
		store:  opts.Store,
		now:    time.Now,
	}

	frameSrc := "https://open.spotify.com"
	if origin, err := urlutil.Origin(opts.Config.Spotify.EmbedBaseURL); err == nil {
		frameSrc = origin
	}
	pageMiddleware := []MiddlewareFunc{sess.middleware, NewSecurityHeadersMiddleware(frameSrc)}
	apiMiddleware := []MiddlewareFunc{sess.middleware, NewCORSMiddleware(opts.Config.Server.AllowedOrigins)}

	mux := http.NewServeMux()
	mux.Handle("GET /health", NewHealthHandler(opts.Store))
	mux.Handle("GET "+exactPattern(h.pagePath), ChainMiddleware(http.HandlerFunc(h.Page), pageMiddleware...))
	mux.Handle("POST "+LogoutPath, ChainMiddleware(http.HandlerFunc(h.Logout), pageMiddleware...))
	if h.pagePath != "/" {
		mux.Handle("GET /{$}", http.RedirectHandler(h.pagePath, http.StatusFound))
	}

	mux.Handle("/api/me", ChainMiddleware(http.HandlerFunc(h.APIMe), apiMiddleware...))
	mux.Handle("/api/dashboard", ChainMiddleware(http.HandlerFunc(h.APIDashboard), apiMiddleware...))
	mux.Handle("/api/search", ChainMiddleware(http.HandlerFunc(h.APISearch), apiMiddleware...))
	mux.Handle("/api/embed", ChainMiddleware(http.HandlerFunc(h.APIEmbed), apiMiddleware...))

	return ChainMiddleware(mux,
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
	), nil
}

// SessionTTL is the configured session lifetime, 24h when unset
func SessionTTL(cfg config.Config) time.Duration {
	if cfg.Server.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return cfg.Server.SessionTTL
}

// exactPattern matches path alone, not the subtree below it
func exactPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "{$}"
	}
	return path
}
