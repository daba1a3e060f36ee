package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// parseInto resolves raw into dst when the field was present in the file
func parseInto(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	v, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = v
	return nil
}

func parseDuration(raw, field string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// UnmarshalJSON overlays the fields present in data onto the receiver, so
// decoding into Default() keeps defaults for omitted fields.
func (s *SpotifyConfig) UnmarshalJSON(data []byte) error {
	type rawSpotify struct {
		ClientID       json.RawMessage `json:"clientId"`
		RedirectURI    json.RawMessage `json:"redirectUri"`
		Scopes         []string        `json:"scopes"`
		AuthURL        string          `json:"authUrl"`
		TokenURL       string          `json:"tokenUrl"`
		APIBaseURL     string          `json:"apiBaseUrl"`
		EmbedBaseURL   string          `json:"embedBaseUrl"`
		TokenValidity  string          `json:"tokenValidity"`
		VerifierLength *int            `json:"verifierLength"`
	}

	var raw rawSpotify
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := parseInto(raw.ClientID, "clientId", &s.ClientID); err != nil {
		return err
	}
	if err := parseInto(raw.RedirectURI, "redirectUri", &s.RedirectURI); err != nil {
		return err
	}
	if raw.Scopes != nil {
		s.Scopes = raw.Scopes
	}
	if raw.AuthURL != "" {
		s.AuthURL = raw.AuthURL
	}
	if raw.TokenURL != "" {
		s.TokenURL = raw.TokenURL
	}
	if raw.APIBaseURL != "" {
		s.APIBaseURL = raw.APIBaseURL
	}
	if raw.EmbedBaseURL != "" {
		s.EmbedBaseURL = raw.EmbedBaseURL
	}
	if err := parseDuration(raw.TokenValidity, "tokenValidity", &s.TokenValidity); err != nil {
		return err
	}
	if raw.VerifierLength != nil {
		s.VerifierLength = *raw.VerifierLength
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		Path                json.RawMessage `json:"path"`
		KeyringService      string          `json:"keyringService"`
		RedisAddr           json.RawMessage `json:"redisAddr"`
		RedisUsername       json.RawMessage `json:"redisUsername"`
		RedisPassword       json.RawMessage `json:"redisPassword"`
		RedisDB             *int            `json:"redisDb"`
		KeyPrefix           string          `json:"keyPrefix"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		EncryptionKey       json.RawMessage `json:"encryptionKey"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Kind != "" {
		s.Kind = raw.Kind
	}
	if err := parseInto(raw.Path, "path", &s.Path); err != nil {
		return err
	}
	if raw.KeyringService != "" {
		s.KeyringService = raw.KeyringService
	}
	if err := parseInto(raw.RedisAddr, "redisAddr", &s.RedisAddr); err != nil {
		return err
	}
	if err := parseInto(raw.RedisUsername, "redisUsername", &s.RedisUsername); err != nil {
		return err
	}
	var password string
	if err := parseInto(raw.RedisPassword, "redisPassword", &password); err != nil {
		return err
	}
	if password != "" {
		s.RedisPassword = Secret(password)
	}
	if raw.RedisDB != nil {
		s.RedisDB = *raw.RedisDB
	}
	if raw.KeyPrefix != "" {
		s.KeyPrefix = raw.KeyPrefix
	}
	if err := parseInto(raw.GCPProject, "gcpProject", &s.GCPProject); err != nil {
		return err
	}
	if raw.FirestoreDatabase != "" {
		s.FirestoreDatabase = raw.FirestoreDatabase
	}
	if raw.FirestoreCollection != "" {
		s.FirestoreCollection = raw.FirestoreCollection
	}
	var key string
	if err := parseInto(raw.EncryptionKey, "encryptionKey", &key); err != nil {
		return err
	}
	if key != "" {
		s.EncryptionKey = Secret(key)
	}

	// Apply defaults for Firestore configuration
	if s.Kind == StorageKindFirestore {
		if s.FirestoreDatabase == "" {
			s.FirestoreDatabase = "(default)"
		}
		if s.FirestoreCollection == "" {
			s.FirestoreCollection = "soporify_state"
		}
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr           json.RawMessage `json:"addr"`
		SessionTTL     string          `json:"sessionTtl"`
		SessionSecret  json.RawMessage `json:"sessionSecret"`
		AllowedOrigins []string        `json:"allowedOrigins"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := parseInto(raw.Addr, "addr", &s.Addr); err != nil {
		return err
	}
	if err := parseDuration(raw.SessionTTL, "sessionTtl", &s.SessionTTL); err != nil {
		return err
	}
	var secret string
	if err := parseInto(raw.SessionSecret, "sessionSecret", &secret); err != nil {
		return err
	}
	if secret != "" {
		s.SessionSecret = Secret(secret)
	}
	if raw.AllowedOrigins != nil {
		s.AllowedOrigins = raw.AllowedOrigins
	}
	return nil
}
