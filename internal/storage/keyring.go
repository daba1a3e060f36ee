package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name entries are filed under
const DefaultKeyringService = "soporify"

var _ Store = (*KeyringStore)(nil)

// KeyringStore keeps values in the operating system keyring
// (Keychain, Secret Service, Windows Credential Manager).
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a store under the given keyring service name
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Get(_ context.Context, key string) (string, error) {
	v, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading keyring entry %s: %w", key, err)
	}
	return v, nil
}

func (s *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("writing keyring entry %s: %w", key, err)
	}
	return nil
}

func (s *KeyringStore) Remove(_ context.Context, key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring entry %s: %w", key, err)
	}
	return nil
}
