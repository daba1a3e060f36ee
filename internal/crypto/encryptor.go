package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretLength is the shortest secret accepted for deriving an encryption key.
	MinSecretLength = 16

	keyInfo = "soporify storage encryption v1"
)

// Encryptor seals and opens short string values. The associated data is
// authenticated but not encrypted; Decrypt fails unless it receives the
// same associated data Encrypt was given.
type Encryptor interface {
	Encrypt(plaintext, associatedData string) (string, error)
	Decrypt(ciphertext, associatedData string) (string, error)
}

type gcmEncryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives an AES-256 key from secret with HKDF-SHA256 and
// returns an AES-GCM encryptor. Ciphertexts are base64url(nonce || sealed).
func NewEncryptor(secret []byte) (Encryptor, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &gcmEncryptor{aead: aead}, nil
}

func (e *gcmEncryptor) Encrypt(plaintext, associatedData string) (string, error) {
	nonce, err := RandomBytes(e.aead.NonceSize())
	if err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associatedData))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *gcmEncryptor) Decrypt(ciphertext, associatedData string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(data) < e.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, []byte(associatedData))
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}
