package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no value
var ErrNotFound = errors.New("key not found")

// ErrNotListable is returned by operations that need to enumerate keys on
// a store that cannot
var ErrNotListable = errors.New("store cannot list its keys")

// Store is the persisted key/value capability the token lifecycle runs on.
// Values are opaque strings. Remove of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate their keys
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Closer is implemented by stores holding a connection
type Closer interface {
	Close() error
}

// Keys lists the keys of s if it supports listing
func Keys(ctx context.Context, s Store) ([]string, bool, error) {
	l, ok := s.(Lister)
	if !ok {
		return nil, false, nil
	}
	keys, err := l.Keys(ctx)
	return keys, true, err
}

// Close releases the store's resources if it holds any
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// Pinger is implemented by stores backed by a remote service
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the backend of s if it is remote
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// MatchRemover is implemented by stores that can delete many keys at once
type MatchRemover interface {
	RemoveMatching(ctx context.Context, match func(key string) bool) (int, error)
}

// RemoveMatching deletes every key of s accepted by match. Stores that
// cannot enumerate their keys return ErrNotListable.
func RemoveMatching(ctx context.Context, s Store, match func(key string) bool) (int, error) {
	if r, ok := s.(MatchRemover); ok {
		return r.RemoveMatching(ctx, match)
	}
	keys, ok, err := Keys(ctx, s)
	if !ok {
		return 0, ErrNotListable
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if !match(k) {
			continue
		}
		if err := s.Remove(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
