package internal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/crypto"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/login"
	"github.com/dgellow/soporify/internal/server"
	"github.com/dgellow/soporify/internal/spotify"
	"github.com/dgellow/soporify/internal/storage"
	"github.com/dgellow/soporify/internal/toolserver"
	"golang.org/x/oauth2"
)

const shutdownTimeout = 30 * time.Second

// App holds the dependencies shared by every command: the configured
// store and the token lifecycle manager running on it.
type App struct {
	config  config.Config
	store   storage.Store
	manager *auth.Manager
	version string
}

// NewApp opens the configured store and builds the manager
func NewApp(ctx context.Context, cfg config.Config, version string) (*App, error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	return &App{
		config:  cfg,
		store:   store,
		manager: auth.NewManager(cfg.Spotify, store),
		version: version,
	}, nil
}

// Manager returns the token lifecycle manager
func (a *App) Manager() *auth.Manager {
	return a.manager
}

// Store returns the configured store
func (a *App) Store() storage.Store {
	return a.store
}

// NewClient builds an API client on the configured endpoints
func (a *App) NewClient(ts oauth2.TokenSource) *spotify.Client {
	return spotify.NewClient(ts,
		spotify.WithBaseURL(a.config.Spotify.APIBaseURL),
		spotify.WithEmbedBaseURL(a.config.Spotify.EmbedBaseURL),
	)
}

// Client returns an API client for the stored token, or
// auth.ErrNotAuthenticated when none is usable.
func (a *App) Client(ctx context.Context) (*spotify.Client, error) {
	if !a.manager.HasUsableToken(ctx) {
		return nil, auth.ErrNotAuthenticated
	}
	return a.NewClient(a.manager.TokenSource(ctx)), nil
}

// Login runs the interactive loopback flow
func (a *App) Login(ctx context.Context, skipBrowser bool, opts ...login.Option) error {
	flow, err := login.NewFlow(a.manager, a.config, opts...)
	if err != nil {
		return err
	}
	return flow.Run(ctx, skipBrowser)
}

// ServeMCP serves the tool server on the given streams until ctx is done
func (a *App) ServeMCP(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	s := toolserver.NewServer("soporify", a.version, a.manager, a.NewClient)
	return s.ServeStdio(ctx, in, out, errOut)
}

// Serve runs the redirect URI web host until ctx is done, then shuts it
// down gracefully.
func (a *App) Serve(ctx context.Context) error {
	addr, err := a.config.ListenAddr()
	if err != nil {
		return err
	}

	handler, err := server.NewHandler(server.Options{
		Config:     a.config,
		Manager:    a.manager,
		Store:      a.store,
		NewClient:  a.NewClient,
		SessionKey: []byte(a.config.Server.SessionSecret),
	})
	if err != nil {
		return fmt.Errorf("failed to build HTTP handler: %w", err)
	}
	httpServer := server.NewHTTPServer(handler, addr)

	janitor := server.NewSessionJanitor(a.store, server.SessionTTL(a.config))
	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		janitor.Run(sweepCtx, server.SessionSweepInterval)
	}()
	// The store is closed after Serve returns; the sweep must be done by then
	defer func() {
		stopSweep()
		<-sweepDone
	}()

	log.LogInfoWithFields("app", "Starting web host", map[string]any{
		"addr":         addr,
		"redirect_uri": a.config.Spotify.RedirectURI,
		"storage":      string(a.config.Storage.Kind),
	})

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var shutdownReason string
	select {
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("app", "Shutdown requested", nil)
	case err := <-errChan:
		log.LogErrorWithFields("app", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("app", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("app", "Web host stopped", nil)
	return nil
}

// Close releases the store
func (a *App) Close() error {
	return storage.Close(a.store)
}

// setupStorage opens the configured backend, sealed with the encryption
// key when one is set.
func setupStorage(ctx context.Context, cfg config.Config) (storage.Store, error) {
	sc := cfg.Storage

	var store storage.Store
	switch sc.Kind {
	case config.StorageKindMemory:
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		store = storage.NewMemoryStore()

	case config.StorageKindFile, "":
		path := sc.Path
		if path == "" {
			p, err := storage.DefaultFilePath()
			if err != nil {
				return nil, fmt.Errorf("resolving state file: %w", err)
			}
			path = p
		}
		log.LogDebugWithFields("storage", "Using file storage", map[string]any{
			"path": path,
		})
		fs, err := storage.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		store = fs

	case config.StorageKindKeyring:
		log.LogDebugWithFields("storage", "Using keyring storage", map[string]any{
			"service": sc.KeyringService,
		})
		store = storage.NewKeyringStore(sc.KeyringService)

	case config.StorageKindRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": sc.RedisAddr,
			"db":   sc.RedisDB,
		})
		rs, err := storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:      sc.RedisAddr,
			Username:  sc.RedisUsername,
			Password:  string(sc.RedisPassword),
			DB:        sc.RedisDB,
			KeyPrefix: sc.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		store = rs

	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    sc.GCPProject,
			"database":   sc.FirestoreDatabase,
			"collection": sc.FirestoreCollection,
		})
		fs, err := storage.NewFirestoreStore(ctx, storage.FirestoreConfig{
			ProjectID:  sc.GCPProject,
			Database:   sc.FirestoreDatabase,
			Collection: sc.FirestoreCollection,
		})
		if err != nil {
			return nil, err
		}
		store = fs

	default:
		return nil, fmt.Errorf("unknown storage kind %q", sc.Kind)
	}

	if sc.EncryptionKey == "" {
		return store, nil
	}
	encryptor, err := crypto.NewEncryptor([]byte(sc.EncryptionKey))
	if err != nil {
		_ = storage.Close(store)
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	sealed, err := storage.NewEncryptedStore(store, encryptor)
	if err != nil {
		_ = storage.Close(store)
		return nil, err
	}
	return sealed, nil
}
