package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgellow/soporify/internal/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "verifier")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "verifier", "abc123"))
	v, err := s.Get(ctx, "verifier")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v)

	// Last writer wins
	require.NoError(t, s.Set(ctx, "verifier", "def456"))
	v, err = s.Get(ctx, "verifier")
	require.NoError(t, err)
	assert.Equal(t, "def456", v)

	require.NoError(t, s.Set(ctx, "token_expiration", "1700000000000"))
	require.NoError(t, s.Remove(ctx, "verifier"))
	_, err = s.Get(ctx, "verifier")
	assert.ErrorIs(t, err, ErrNotFound)

	// Removing an absent key is fine
	require.NoError(t, s.Remove(ctx, "verifier"))

	v, err = s.Get(ctx, "token_expiration")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", v)

	if keys, ok, err := Keys(ctx, s); ok {
		require.NoError(t, err)
		assert.Equal(t, []string{"token_expiration"}, keys)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	t.Run("persists across instances", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "access_token", "T"))

		reopened, err := NewFileStore(path)
		require.NoError(t, err)
		v, err := reopened.Get(ctx, "access_token")
		require.NoError(t, err)
		assert.Equal(t, "T", v)
	})

	t.Run("file is private", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))
		s, err := NewFileStore(bad)
		require.NoError(t, err)
		_, err = s.Get(context.Background(), "verifier")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent writers keep every key", func(t *testing.T) {
		ctx := context.Background()
		shared := filepath.Join(t.TempDir(), "state.json")
		first, err := NewFileStore(shared)
		require.NoError(t, err)
		second, err := NewFileStore(shared)
		require.NoError(t, err)

		const writers = 64
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := range writers {
			store := first
			if i%2 == 1 {
				store = second
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Set(ctx, fmt.Sprintf("session:%d:verifier", i), "v")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		keys, err := first.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, writers)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, s.Set(ctx, "verifier", "x"))
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewFileStore("")
		assert.Error(t, err)
	})
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	exerciseStore(t, NewKeyringStore("soporify-test"))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStoreWithClient(client, "test:")
	exerciseStore(t, s)

	// Keys live under the prefix
	assert.True(t, mr.Exists("test:token_expiration"))
	assert.False(t, mr.Exists("token_expiration"))

	t.Run("connect", func(t *testing.T) {
		s, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Ping(context.Background()))
		assert.Equal(t, DefaultRedisKeyPrefix, s.keyPrefix)
	})

	t.Run("ping through encryption", func(t *testing.T) {
		enc, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
		require.NoError(t, err)
		wrapped, err := NewEncryptedStore(s, enc)
		require.NoError(t, err)
		require.NoError(t, Ping(context.Background(), wrapped))

		mr.SetError("server down")
		assert.Error(t, Ping(context.Background(), wrapped))
		mr.SetError("")
	})

	t.Run("memory needs no ping", func(t *testing.T) {
		assert.NoError(t, Ping(context.Background(), NewMemoryStore()))
	})

	t.Run("missing address", func(t *testing.T) {
		_, err := NewRedisStore(context.Background(), RedisConfig{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "address is required")
	})
}

func TestEncryptedStore(t *testing.T) {
	enc, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	inner := NewMemoryStore()
	s, err := NewEncryptedStore(inner, enc)
	require.NoError(t, err)
	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "access_token", "BQDx-secret"))
	raw, err := inner.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.NotEqual(t, "BQDx-secret", raw)

	t.Run("value moved to another key", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "session:a:access_token", "BQDx-of-a"))
		sealedA, err := inner.Get(ctx, "session:a:access_token")
		require.NoError(t, err)

		require.NoError(t, inner.Set(ctx, "session:b:access_token", sealedA))
		_, err = s.Get(ctx, "session:b:access_token")
		assert.Error(t, err)

		v, err := s.Get(ctx, "session:a:access_token")
		require.NoError(t, err)
		assert.Equal(t, "BQDx-of-a", v)
	})

	t.Run("tampered value", func(t *testing.T) {
		require.NoError(t, inner.Set(ctx, "access_token", "garbage"))
		_, err := s.Get(ctx, "access_token")
		assert.Error(t, err)
	})

	t.Run("nil encryptor", func(t *testing.T) {
		_, err := NewEncryptedStore(inner, nil)
		assert.Error(t, err)
	})
}

func TestScopedStore(t *testing.T) {
	inner := NewMemoryStore()
	exerciseStore(t, Scoped(inner, "session-a"))

	ctx := context.Background()
	a := Scoped(inner, "session-a")
	b := Scoped(inner, "session-b")

	require.NoError(t, a.Set(ctx, "verifier", "from-a"))
	_, err := b.Get(ctx, "verifier")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := inner.Get(ctx, "session-a:verifier")
	require.NoError(t, err)
	assert.Equal(t, "from-a", raw)
}

func TestFirestoreStoreConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("missing project", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, FirestoreConfig{Collection: "soporify"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, FirestoreConfig{ProjectID: "test-project"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "collection is required")
	})
}

func TestFirestoreStoreEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	s, err := NewFirestoreStore(context.Background(), FirestoreConfig{
		ProjectID:  "soporify-test",
		Collection: "state_" + filepath.Base(t.TempDir()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestRemoveMatching(t *testing.T) {
	ctx := context.Background()
	sessionA := func(k string) bool { return strings.HasPrefix(k, "session:a:") }

	seed := func(t *testing.T, s Store) {
		t.Helper()
		for _, k := range []string{"session:a:verifier", "session:a:created", "session:b:verifier", "access_token"} {
			require.NoError(t, s.Set(ctx, k, "v"))
		}
	}

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  NewRedisStoreWithClient(client, "test:"),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			removed, err := RemoveMatching(ctx, s, sessionA)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			keys, _, err := Keys(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, []string{"access_token", "session:b:verifier"}, keys)
		})
	}

	t.Run("unlistable store", func(t *testing.T) {
		keyring.MockInit()
		_, err := RemoveMatching(ctx, NewKeyringStore("soporify-test"), sessionA)
		assert.ErrorIs(t, err, ErrNotListable)
	})
}
