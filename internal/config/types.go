package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// CurrentVersion is the config schema version this build reads
const CurrentVersion = "v1"

// Spotify defaults. The client id belongs to the registered public client;
// PKCE public clients carry no secret.
const (
	DefaultClientID       = "84191b3766304e57a561c7e04a0a5064"
	DefaultRedirectURI    = "http://localhost:5173/soporify/"
	DefaultAuthURL        = "https://accounts.spotify.com/authorize"
	DefaultTokenURL       = "https://accounts.spotify.com/api/token"
	DefaultAPIBaseURL     = "https://api.spotify.com/v1"
	DefaultEmbedBaseURL   = "https://open.spotify.com/embed"
	DefaultTokenValidity  = 3600 * time.Second
	DefaultVerifierLength = 128
)

// DefaultScopes are the scopes requested on authorization
var DefaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-follow-read",
	"user-modify-playback-state",
}

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the persisted key/value backend. Empty leaves the
// choice to the command: file for the CLI, memory for the web host.
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFile      StorageKind = "file"
	StorageKindKeyring   StorageKind = "keyring"
	StorageKindRedis     StorageKind = "redis"
	StorageKindFirestore StorageKind = "firestore"
)

// Or returns k, or fallback when k is unset
func (k StorageKind) Or(fallback StorageKind) StorageKind {
	if k == "" {
		return fallback
	}
	return k
}

// SpotifyConfig describes the OAuth client and API endpoints
type SpotifyConfig struct {
	ClientID       string        `json:"clientId"`
	RedirectURI    string        `json:"redirectUri"`
	Scopes         []string      `json:"scopes"`
	AuthURL        string        `json:"authUrl"`
	TokenURL       string        `json:"tokenUrl"`
	APIBaseURL     string        `json:"apiBaseUrl"`
	EmbedBaseURL   string        `json:"embedBaseUrl"`
	TokenValidity  time.Duration `json:"tokenValidity"`
	VerifierLength int           `json:"verifierLength"`
}

// StorageConfig describes where verifier and token are persisted
type StorageConfig struct {
	Kind                StorageKind `json:"kind"`
	Path                string      `json:"path,omitempty"`
	KeyringService      string      `json:"keyringService,omitempty"`
	RedisAddr           string      `json:"redisAddr,omitempty"`
	RedisUsername       string      `json:"redisUsername,omitempty"`
	RedisPassword       Secret      `json:"redisPassword,omitempty"`
	RedisDB             int         `json:"redisDb,omitempty"`
	KeyPrefix           string      `json:"keyPrefix,omitempty"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
	EncryptionKey       Secret      `json:"encryptionKey,omitempty"`
}

// ServerConfig configures the redirect URI web host
type ServerConfig struct {
	Addr           string        `json:"addr,omitempty"`
	SessionTTL     time.Duration `json:"sessionTtl,omitempty"`
	SessionSecret  Secret        `json:"sessionSecret,omitempty"`
	AllowedOrigins []string      `json:"allowedOrigins,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version string        `json:"version"`
	Spotify SpotifyConfig `json:"spotify"`
	Storage StorageConfig `json:"storage"`
	Server  ServerConfig  `json:"server"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Version: CurrentVersion,
		Spotify: SpotifyConfig{
			ClientID:       DefaultClientID,
			RedirectURI:    DefaultRedirectURI,
			Scopes:         append([]string(nil), DefaultScopes...),
			AuthURL:        DefaultAuthURL,
			TokenURL:       DefaultTokenURL,
			APIBaseURL:     DefaultAPIBaseURL,
			EmbedBaseURL:   DefaultEmbedBaseURL,
			TokenValidity:  DefaultTokenValidity,
			VerifierLength: DefaultVerifierLength,
		},
		Server: ServerConfig{
			SessionTTL: 24 * time.Hour,
		},
	}
}

// ListenAddr is the configured server address, or the host:port of the
// redirect URI so the server receives the provider's callback.
func (c Config) ListenAddr() (string, error) {
	if c.Server.Addr != "" {
		return c.Server.Addr, nil
	}
	u, err := url.Parse(c.Spotify.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parsing redirectUri: %w", err)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("redirectUri %s has no port; set server.addr", c.Spotify.RedirectURI)
	}
	return u.Host, nil
}

// RedirectPath is the path component of the redirect URI
func (c Config) RedirectPath() string {
	u, err := url.Parse(c.Spotify.RedirectURI)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved immediately.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}
