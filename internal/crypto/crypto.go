// Package crypto provides AES-256-GCM encryption for credentials at rest
// (UserCredential.Ciphertext).
//
// Encrypted values are prefixed "enc:" followed by base64-encoded
// nonce+ciphertext, so legacy plaintext rows are trivially distinguishable
// on read.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const encPrefix = "enc:"

// ErrKeyAbsent is returned by LoadKey when no key material is configured.
// Callers treat it as "BYOK disabled" rather than a fatal error.
var ErrKeyAbsent = errors.New("crypto: encryption key not configured")

// LoadKey validates the API_KEY_ENCRYPTION_KEY environment value per spec
// §6/§8: it must be exactly 64 hex characters (32 bytes) or absent. Unlike
// the teacher's DeriveKey, which hashes an arbitrary passphrase, Conduit
// requires the raw key material so that length and charset boundary
// behaviors (32/63/65 chars, non-hex) are rejected rather than silently
// normalized.
func LoadKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, ErrKeyAbsent
	}
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("crypto: encryption key must be exactly 64 hex characters, got %d", len(hexKey))
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: encryption key must be hex-encoded: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM. Empty input passes through
// unchanged so optional fields don't round-trip into "enc:" noise.
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value previously produced by Encrypt. Plaintext
// passthrough lets callers decrypt mixed legacy/encrypted columns uniformly.
//
// Decrypted plaintext MUST NOT be logged by callers (spec §3 invariant on
// UserCredential.content).
func Decrypt(ciphertext string, key []byte) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the "enc:" prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}
