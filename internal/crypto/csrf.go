package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection issues HMAC tokens bound to a browser session.
// Format: nonce:timestamp:signature, signature over session|nonce|timestamp.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCSRFProtection creates a new CSRF protection instance
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// Generate creates a token usable only with the given session
func (c *CSRFProtection) Generate(sessionID string) (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := SignData(sessionID+"|"+nonce+"|"+timestamp, c.signingKey)

	return nonce + ":" + timestamp + ":" + signature, nil
}

// Validate checks the token signature, session binding and age
func (c *CSRFProtection) Validate(token, sessionID string) bool {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return false
	}
	nonce, timestampStr, signature := parts[0], parts[1], parts[2]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(timestamp, 0)) > c.ttl {
		return false
	}

	return ValidateSignedData(sessionID+"|"+nonce+"|"+timestampStr, signature, c.signingKey)
}
