package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectErrors   []string
		expectWarnings []string
	}{
		{
			name: "valid",
			body: `{"version": "v1", "spotify": {"clientId": "abc", "scopes": ["user-read-email"]}, "storage": {"kind": "keyring"}}`,
		},
		{
			name:         "invalid json",
			body:         `{"version": `,
			expectErrors: []string{"invalid JSON"},
		},
		{
			name:           "missing version and spotify",
			body:           `{}`,
			expectErrors:   []string{"version field is required"},
			expectWarnings: []string{"spotify section missing"},
		},
		{
			name:           "bash style env",
			body:           `{"version": "v1", "spotify": {"clientId": "${SPOTIFY_CLIENT_ID}"}}`,
			expectWarnings: []string{"found bash-style syntax '${SPOTIFY_CLIENT_ID}'"},
		},
		{
			name:         "plain text secret",
			body:         `{"version": "v1", "spotify": {}, "storage": {"kind": "redis", "redisAddr": "localhost:6379", "encryptionKey": "plain"}}`,
			expectErrors: []string{"encryptionKey must use environment variable reference"},
		},
		{
			name:         "scope with space",
			body:         `{"version": "v1", "spotify": {"scopes": ["user-read-email user-follow-read"]}}`,
			expectErrors: []string{"each scope must be a single string"},
		},
		{
			name:         "unknown storage kind",
			body:         `{"version": "v1", "spotify": {}, "storage": {"kind": "s3"}}`,
			expectErrors: []string{"unknown storage kind 's3'"},
		},
		{
			name:           "memory storage warns",
			body:           `{"version": "v1", "spotify": {}, "storage": {"kind": "memory"}}`,
			expectWarnings: []string{"memory storage forgets the token"},
		},
		{
			name:           "client secret ignored",
			body:           `{"version": "v1", "spotify": {"clientSecret": {"$env": "X"}}}`,
			expectWarnings: []string{"clientSecret is ignored"},
		},
		{
			name:         "firestore without project",
			body:         `{"version": "v1", "spotify": {}, "storage": {"kind": "firestore"}}`,
			expectErrors: []string{"gcpProject is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateFile(writeConfig(t, tt.body))
			require.NoError(t, err)

			assert.Len(t, result.Errors, len(tt.expectErrors), "errors: %+v", result.Errors)
			for i, msg := range tt.expectErrors {
				if i < len(result.Errors) {
					assert.Contains(t, result.Errors[i].Message, msg)
				}
			}
			assert.Len(t, result.Warnings, len(tt.expectWarnings), "warnings: %+v", result.Warnings)
			for i, msg := range tt.expectWarnings {
				if i < len(result.Warnings) {
					assert.Contains(t, result.Warnings[i].Message, msg)
				}
			}
			assert.Equal(t, len(tt.expectErrors) == 0, result.IsValid())
		})
	}
}
