package internal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

func TestSetupStorage(t *testing.T) {
	ctx := context.Background()
	keyring.MockInit()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		storage config.StorageConfig
		check   func(t *testing.T, s storage.Store)
		wantErr string
	}{
		{
			name:    "memory",
			storage: config.StorageConfig{Kind: config.StorageKindMemory},
			check: func(t *testing.T, s storage.Store) {
				assert.IsType(t, &storage.MemoryStore{}, s)
			},
		},
		{
			name:    "file",
			storage: config.StorageConfig{Kind: config.StorageKindFile, Path: filepath.Join(t.TempDir(), "state.json")},
			check: func(t *testing.T, s storage.Store) {
				assert.IsType(t, &storage.FileStore{}, s)
			},
		},
		{
			name:    "keyring",
			storage: config.StorageConfig{Kind: config.StorageKindKeyring},
			check: func(t *testing.T, s storage.Store) {
				assert.IsType(t, &storage.KeyringStore{}, s)
			},
		},
		{
			name:    "redis",
			storage: config.StorageConfig{Kind: config.StorageKindRedis, RedisAddr: mr.Addr()},
			check: func(t *testing.T, s storage.Store) {
				assert.IsType(t, &storage.RedisStore{}, s)
			},
		},
		{
			name: "redis sealed",
			storage: config.StorageConfig{
				Kind:          config.StorageKindRedis,
				RedisAddr:     mr.Addr(),
				KeyPrefix:     "sealed:",
				EncryptionKey: testEncryptionKey,
			},
			check: func(t *testing.T, s storage.Store) {
				require.IsType(t, &storage.EncryptedStore{}, s)
				require.NoError(t, s.Set(ctx, auth.KeyAccessToken, "BQDx-plain"))

				raw, err := mr.Get("sealed:" + auth.KeyAccessToken)
				require.NoError(t, err)
				assert.NotContains(t, raw, "BQDx-plain")
			},
		},
		{
			name:    "short encryption key",
			storage: config.StorageConfig{Kind: config.StorageKindMemory, EncryptionKey: "short"},
			wantErr: "failed to create encryptor",
		},
		{
			name:    "unreachable redis",
			storage: config.StorageConfig{Kind: config.StorageKindRedis, RedisAddr: "127.0.0.1:1"},
			wantErr: "failed to connect to redis",
		},
		{
			name:    "unknown kind",
			storage: config.StorageConfig{Kind: "etcd"},
			wantErr: `unknown storage kind "etcd"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage = tt.storage

			s, err := setupStorage(ctx, cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = storage.Close(s) })
			tt.check(t, s)
		})
	}
}

func TestAppClient(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Kind: config.StorageKindMemory}

	app, err := NewApp(ctx, cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	_, err = app.Client(ctx)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	require.NoError(t, app.Manager().SaveToken(ctx, "BQDx"))
	client, err := app.Client(ctx)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Kind: config.StorageKindMemory}
	cfg.Server.Addr = "127.0.0.1:0"

	app, err := NewApp(context.Background(), cfg, "test")
	require.NoError(t, err)

	// A session scope nothing can reach any more
	require.NoError(t, app.Store().Set(context.Background(), "session:stale:verifier", "v"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := app.Store().Get(context.Background(), "session:stale:verifier")
		return errors.Is(err, storage.ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond, "the session sweep runs when serving starts")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeRequiresAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Kind: config.StorageKindMemory}
	cfg.Spotify.RedirectURI = "https://example.com/callback"

	app, err := NewApp(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.Error(t, app.Serve(context.Background()))
}
