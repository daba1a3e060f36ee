package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("version field is required. Hint: Add \"version\": %q", CurrentVersion),
		})
	} else if version != CurrentVersion {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("unsupported version '%s' - use '%s'", version, CurrentVersion),
		})
	}

	validateSpotifyStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	if server, ok := rawConfig["server"].(map[string]any); ok {
		if secret, ok := server["sessionSecret"]; ok {
			if verr := validateEnvVarReference(secret, "sessionSecret", "server.sessionSecret"); verr != nil {
				result.Errors = append(result.Errors, *verr)
			}
		}
	}

	return result, nil
}

func validateSpotifyStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, present := rawConfig["spotify"]
	if !present {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "spotify",
			Message: "spotify section missing - the built-in client id and redirect URI will be used",
		})
		return
	}
	spotify, ok := raw.(map[string]any)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "spotify",
			Message: "spotify must be an object",
		})
		return
	}

	if redirect, ok := spotify["redirectUri"].(string); ok {
		if !strings.HasPrefix(redirect, "http://") && !strings.HasPrefix(redirect, "https://") {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "spotify.redirectUri",
				Message: fmt.Sprintf("redirectUri must be an http(s) URL, got %q", redirect),
			})
		}
	}

	if scopes, ok := spotify["scopes"]; ok {
		list, isList := scopes.([]any)
		if !isList {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "spotify.scopes",
				Message: "scopes must be an array of strings. Example: [\"user-read-email\"]",
			})
		} else {
			for i, s := range list {
				str, isString := s.(string)
				if !isString || strings.ContainsAny(str, " \t") {
					result.Errors = append(result.Errors, ValidationError{
						Path:    fmt.Sprintf("spotify.scopes[%d]", i),
						Message: "each scope must be a single string without spaces",
					})
				}
			}
		}
	}

	if _, ok := spotify["clientSecret"]; ok {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "spotify.clientSecret",
			Message: "clientSecret is ignored - the PKCE flow uses a public client",
		})
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory, StorageKindFile, StorageKindKeyring:
	case StorageKindRedis:
		if _, ok := storage["redisAddr"]; !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "storage.redisAddr",
				Message: "redisAddr is required for redis storage. Example: \"localhost:6379\"",
			})
		}
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "storage.gcpProject",
				Message: "gcpProject is required for firestore storage",
			})
		}
	default:
		result.Errors = append(result.Errors, ValidationError{
			Path:    "storage.kind",
			Message: fmt.Sprintf("unknown storage kind '%s' - use memory, file, keyring, redis or firestore", kind),
		})
	}

	if kind == string(StorageKindMemory) {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "storage.kind",
			Message: "memory storage forgets the token on exit - every CLI run will require a new login",
		})
	}

	for _, name := range []string{"redisPassword", "encryptionKey"} {
		if value, ok := storage[name]; ok {
			if verr := validateEnvVarReference(value, name, "storage."+name); verr != nil {
				result.Errors = append(result.Errors, *verr)
			}
		}
	}
}

// validateEnvVarReference requires value to be an {"$env": ...} reference
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This keeps secrets out of config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName),
			})
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
