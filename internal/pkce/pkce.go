// Package pkce implements the client side of Proof Key for Code Exchange
// (RFC 7636) with the S256 challenge method.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// VerifierLength is the verifier length used by the authorization flow.
	VerifierLength = 128

	// MinVerifierLength and MaxVerifierLength bound a verifier per RFC 7636 §4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// MethodS256 is the only challenge method this client sends.
	MethodS256 = "S256"

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Largest multiple of len(alphabet) that fits in a byte. Bytes at or above
	// it are rejected so every character is equally likely.
	rejectAbove = 256 - 256%len(alphabet)
)

// Pair is a verifier together with its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// GenerateVerifier returns length characters drawn uniformly from the
// 62-character alphanumeric alphabet using crypto/rand.
func GenerateVerifier(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("verifier length must be positive, got %d", length)
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// DeriveChallenge returns BASE64URL(SHA256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// NewPair generates a verifier of the given length and its S256 challenge.
func NewPair(length int) (Pair, error) {
	verifier, err := GenerateVerifier(length)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
		Method:    MethodS256,
	}, nil
}

// Verify checks a verifier against an S256 challenge in constant time, the
// check an authorization server makes at the token endpoint.
func Verify(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	computed := DeriveChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
