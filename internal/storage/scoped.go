package storage

import (
	"context"
	"strings"
)

// ScopedStore namespaces every key of an underlying store. The web server
// gives each browser session its own scope so concurrent visitors do not
// share a verifier or token.
type ScopedStore struct {
	inner  Store
	prefix string
}

// Scoped returns a view of s where every key is prefixed with scope
func Scoped(s Store, scope string) *ScopedStore {
	return &ScopedStore{inner: s, prefix: scope + ":"}
}

func (s *ScopedStore) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *ScopedStore) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *ScopedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, s.prefix+key)
}

func (s *ScopedStore) Keys(ctx context.Context) ([]string, error) {
	all, ok, err := Keys(ctx, s.inner)
	if err != nil || !ok {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if rest, found := strings.CutPrefix(k, s.prefix); found {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}
