package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/pkce"
)

// secretFields must be given as {"$env": ...} references, never inline
var secretFields = map[string][]string{
	"storage": {"redisPassword", "encryptionKey"},
	"server":  {"sessionSecret"},
}

// Load loads and processes the config with immediate env var resolution.
// Fields missing from the file keep their Default() value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != CurrentVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects inline secrets before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for section, fields := range secretFields {
		sectionMap, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range fields {
			value, exists := sectionMap[name]
			if !exists {
				continue
			}
			if _, isString := value.(string); isString {
				return fmt.Errorf("%s.%s must use environment variable reference for security", section, name)
			}
			if refMap, isMap := value.(map[string]any); isMap {
				if _, hasEnv := refMap["$env"]; !hasEnv {
					return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", section, name)
				}
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateSpotifyConfig(&config.Spotify); err != nil {
		return fmt.Errorf("spotify config: %w", err)
	}
	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if config.Server.SessionTTL < 0 {
		return fmt.Errorf("server.sessionTtl cannot be negative")
	}
	return nil
}

func validateSpotifyConfig(s *SpotifyConfig) error {
	if s.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if s.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	u, err := url.Parse(s.RedirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("redirectUri must be an absolute URL, got %q", s.RedirectURI)
	}
	for name, endpoint := range map[string]string{
		"authUrl":    s.AuthURL,
		"tokenUrl":   s.TokenURL,
		"apiBaseUrl": s.APIBaseURL,
	} {
		if endpoint == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", name, err)
		}
	}
	if len(s.Scopes) == 0 {
		log.LogWarn("No scopes configured; profile and library calls will be rejected")
	}
	if s.TokenValidity <= 0 {
		return fmt.Errorf("tokenValidity must be positive")
	}
	if s.VerifierLength < pkce.MinVerifierLength || s.VerifierLength > pkce.MaxVerifierLength {
		return fmt.Errorf("verifierLength must be between %d and %d, got %d",
			pkce.MinVerifierLength, pkce.MaxVerifierLength, s.VerifierLength)
	}
	return nil
}

func validateStorageConfig(s *StorageConfig) error {
	switch s.Kind {
	case "", StorageKindMemory, StorageKindFile, StorageKindKeyring:
	case StorageKindRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required when using redis storage")
		}
	case StorageKindFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %q (memory, file, keyring, redis, firestore)", s.Kind)
	}

	// Shared backends hold other users' tokens too; require encryption there
	if (s.Kind == StorageKindRedis || s.Kind == StorageKindFirestore) && s.EncryptionKey == "" {
		return fmt.Errorf("encryptionKey is required when using %s storage", s.Kind)
	}
	return nil
}
