package chatconfig

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidCiphertext is returned when a sealed value cannot be opened.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Sealer encrypts sealed parameter values at rest using AES-256-GCM. The key
// is derived from the bot token, so the database alone does not reveal
// user-supplied API keys.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a sealing key from the given secret.
func NewSealer(secret string) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(secret))}
}

// Seal encrypts a plaintext value to base64.
func (s *Sealer) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, sealedData := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealedData, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}

// Obfuscate masks a private value for display, keeping the scheme prefix and
// the outer characters so the owner can still recognize it.
func Obfuscate(s string) string {
	prefix := ""
	if strings.HasPrefix(s, "https://") {
		prefix = "https://"
		s = strings.TrimPrefix(s, "https://")
	}

	if len(s) <= 10 {
		return prefix + strings.Repeat("*", len(s))
	}
	return prefix + s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
