package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/soporify/internal/crypto"
)

// EncryptedStore seals values before handing them to the wrapped store.
// Keys are stored in clear and bound to their value as associated data, so
// a sealed value copied under another key or session scope does not open.
type EncryptedStore struct {
	inner     Store
	encryptor crypto.Encryptor
}

// NewEncryptedStore wraps s so every value is encrypted at rest
func NewEncryptedStore(s Store, encryptor crypto.Encryptor) (*EncryptedStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &EncryptedStore{inner: s, encryptor: encryptor}, nil
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (string, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}
	value, err := s.encryptor.Decrypt(sealed, key)
	if err != nil {
		return "", fmt.Errorf("decrypting %s: %w", key, err)
	}
	return value, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.encryptor.Encrypt(value, key)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *EncryptedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

func (s *EncryptedStore) RemoveMatching(ctx context.Context, match func(key string) bool) (int, error) {
	return RemoveMatching(ctx, s.inner, match)
}

func (s *EncryptedStore) Keys(ctx context.Context) ([]string, error) {
	keys, _, err := Keys(ctx, s.inner)
	return keys, err
}

func (s *EncryptedStore) Close() error {
	return Close(s.inner)
}

func (s *EncryptedStore) Ping(ctx context.Context) error {
	return Ping(ctx, s.inner)
}
