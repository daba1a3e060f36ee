package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	fileLockTimeout       = 5 * time.Second
	fileLockRetryInterval = 50 * time.Millisecond
)

var _ Store = (*FileStore)(nil)
var _ Lister = (*FileStore)(nil)

// FileStore persists values as a JSON object in a single file. Every
// operation holds mu within the process and an advisory lock on a sibling
// ".lock" file across processes. A flock handle does not exclude other
// goroutines of its own process, so each operation opens its own.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a store backed by path, creating its directory
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// DefaultFilePath returns ~/.soporify/state.json
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".soporify", "state.json"), nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	values, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	return s.update(ctx, func(values map[string]string) {
		values[key] = value
	})
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	return s.update(ctx, func(values map[string]string) {
		delete(values, key)
	})
}

func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	values, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// RemoveMatching deletes every key for which match returns true in a single
// locked rewrite and reports how many were removed.
func (s *FileStore) RemoveMatching(ctx context.Context, match func(key string) bool) (int, error) {
	removed := 0
	err := s.update(ctx, func(values map[string]string) {
		for k := range values {
			if match(k) {
				delete(values, k)
				removed++
			}
		}
	})
	return removed, err
}

func (s *FileStore) snapshot(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fileLock := flock.New(s.path + ".lock")
	defer func() { _ = fileLock.Unlock() }()

	lockCtx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()
	locked, err := fileLock.TryRLockContext(lockCtx, fileLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("locking state file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("locking state file: timeout after %v", fileLockTimeout)
	}

	return s.read()
}

func (s *FileStore) update(ctx context.Context, mutate func(map[string]string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fileLock := flock.New(s.path + ".lock")
	defer func() { _ = fileLock.Unlock() }()

	lockCtx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(lockCtx, fileLockRetryInterval)
	if err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	if !locked {
		return fmt.Errorf("locking state file: timeout after %v", fileLockTimeout)
	}

	values, err := s.read()
	if err != nil {
		return err
	}
	mutate(values)
	return s.write(values)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	return values, nil
}

// write replaces the file via rename so readers never see a partial object
func (s *FileStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting state file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
