package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/soporify/internal/cookie"
	"github.com/dgellow/soporify/internal/crypto"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/storage"
)

const (
	sessionScopePrefix = "session:"
	// sessionCreatedKey holds the session's start time in epoch ms. A
	// session whose marker is gone or older than the TTL is over.
	sessionCreatedKey = "created"
)

type sessionKey struct{}

// sessionScope is the storage scope of one browser session
func sessionScope(id string) string {
	return sessionScopePrefix + id
}

func sessionCreatedStorageKey(id string) string {
	return sessionScope(id) + ":" + sessionCreatedKey
}

// sessions issues signed cookies naming a browser session. Each session
// gets its own storage scope, the server-side equivalent of one browser's
// local storage.
type sessions struct {
	key    []byte
	ttl    time.Duration
	secure bool
	store  storage.Store
	now    func() time.Time
}

func (s *sessions) encode(id string) string {
	return id + "." + crypto.SignData(id, s.key)
}

func (s *sessions) decode(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	return id, crypto.ValidateSignedData(id, sig, s.key)
}

// live reports whether the session's created marker exists and is within
// the TTL
func (s *sessions) live(ctx context.Context, id string) (bool, error) {
	value, err := s.store.Get(ctx, sessionCreatedStorageKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, nil
	}
	return s.now().Sub(time.UnixMilli(ms)) < s.ttl, nil
}

// middleware attaches the session id to the request context, starting a
// new session when the cookie is absent, forged or expired.
func (s *sessions) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var id string
		if value, err := cookie.GetSession(r); err == nil {
			if decoded, ok := s.decode(value); ok {
				live, err := s.live(ctx, decoded)
				if err != nil {
					log.LogErrorWithFields("session", "Failed to read session", map[string]any{
						"error": err.Error(),
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if live {
					id = decoded
				} else {
					log.LogDebugWithFields("session", "Session expired, starting a new one", nil)
				}
			} else {
				log.LogDebugWithFields("session", "Discarding session cookie with bad signature", nil)
			}
		}

		if id == "" {
			token, err := crypto.GenerateSecureToken()
			if err != nil {
				log.LogErrorWithFields("session", "Failed to create session", map[string]any{
					"error": err.Error(),
				})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			id = token
			created := strconv.FormatInt(s.now().UnixMilli(), 10)
			if err := s.store.Set(ctx, sessionCreatedStorageKey(id), created); err != nil {
				log.LogErrorWithFields("session", "Failed to record session", map[string]any{
					"error": err.Error(),
				})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			cookie.SetSession(w, s.encode(id), s.ttl, s.secure)
			log.LogTraceWithFields("session", "Started session", nil)
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, id)))
	})
}

// sessionID returns the session attached by the middleware
func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
