package server

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/storage"
)

const (
	// PendingSessionTTL bounds how long a session without a token keeps
	// its verifier: a login that never came back from the consent page.
	PendingSessionTTL = 15 * time.Minute

	SessionSweepInterval = 5 * time.Minute
)

// SessionJanitor removes the storage scopes of expired sessions. A session
// expires after the session TTL, or after PendingSessionTTL when no token
// was ever saved to it. Scopes without a created marker are unreachable
// and removed too.
type SessionJanitor struct {
	store      storage.Store
	ttl        time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

// NewSessionJanitor sweeps the session scopes of store
func NewSessionJanitor(store storage.Store, ttl time.Duration) *SessionJanitor {
	pending := PendingSessionTTL
	if ttl < pending {
		pending = ttl
	}
	return &SessionJanitor{
		store:      store,
		ttl:        ttl,
		pendingTTL: pending,
		now:        time.Now,
	}
}

type sessionScopeInfo struct {
	hasCreated bool
	hasToken   bool
}

// Sweep removes every expired session scope and returns how many sessions
// were removed. Stores that cannot list keys return storage.ErrNotListable.
func (j *SessionJanitor) Sweep(ctx context.Context) (int, error) {
	keys, ok, err := storage.Keys(ctx, j.store)
	if !ok {
		return 0, storage.ErrNotListable
	}
	if err != nil {
		return 0, err
	}

	scopes := make(map[string]*sessionScopeInfo)
	for _, k := range keys {
		id, name, ok := splitSessionKey(k)
		if !ok {
			continue
		}
		info := scopes[id]
		if info == nil {
			info = &sessionScopeInfo{}
			scopes[id] = info
		}
		switch name {
		case sessionCreatedKey:
			info.hasCreated = true
		case auth.KeyAccessToken:
			info.hasToken = true
		}
	}

	now := j.now()
	expired := make(map[string]bool)
	for id, info := range scopes {
		if !info.hasCreated {
			expired[id] = true
			continue
		}
		value, err := j.store.Get(ctx, sessionCreatedStorageKey(id))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			expired[id] = true
			continue
		}
		age := now.Sub(time.UnixMilli(ms))
		if age >= j.ttl || (!info.hasToken && age >= j.pendingTTL) {
			expired[id] = true
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	removed, err := storage.RemoveMatching(ctx, j.store, func(key string) bool {
		id, _, ok := splitSessionKey(key)
		return ok && expired[id]
	})
	if err != nil {
		return 0, err
	}

	log.LogInfoWithFields("session", "Removed expired sessions", map[string]any{
		"sessions": len(expired),
		"keys":     removed,
	})
	return len(expired), nil
}

// Run sweeps on every interval until ctx is done
func (j *SessionJanitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Sweep(ctx); err != nil {
			if errors.Is(err, storage.ErrNotListable) {
				log.LogWarnWithFields("session", "Store cannot list keys; expired sessions will not be removed", nil)
				return
			}
			if ctx.Err() == nil {
				log.LogErrorWithFields("session", "Session sweep failed", map[string]any{
					"error": err.Error(),
				})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// splitSessionKey parses "session:<id>:<name>"
func splitSessionKey(key string) (id, name string, ok bool) {
	rest, found := strings.CutPrefix(key, sessionScopePrefix)
	if !found {
		return "", "", false
	}
	return strings.Cut(rest, ":")
}
