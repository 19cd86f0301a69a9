// Package config provides configuration management for fedsyncd.
// This file implements AES-256-GCM encryption for auth tokens persisted in
// the source catalog (Source.AuthTokenEncrypted), so a stolen catalog file
// does not hand over live Plex/Jellyfin sessions.
//
// Key derivation: HKDF-SHA256 over the configured master secret, salted and
// scoped so the derived key can never be reused for another purpose even if
// the same secret is reused elsewhere.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	tokenEncryptionSalt = "fedsyncd-auth-tokens"
	tokenEncryptionInfo = "auth-token-encryption-v1"
	aesKeySize          = 32
	gcmNonceSize        = 12
)

var (
	// ErrEmptySecret is returned when an empty master secret is provided.
	ErrEmptySecret = errors.New("master secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed is returned when decryption fails (invalid ciphertext or tampered data).
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrCiphertextTooShort is returned when the ciphertext is shorter than the minimum length.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// TokenEncryptor provides AES-256-GCM encryption for auth tokens at rest.
type TokenEncryptor struct {
	cipher cipher.AEAD
}

// NewTokenEncryptor derives a 256-bit AES key from masterSecret via HKDF-SHA256.
func NewTokenEncryptor(masterSecret string) (*TokenEncryptor, error) {
	if masterSecret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(masterSecret)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &TokenEncryptor{cipher: gcm}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.cipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt, rejecting tampered or malformed input.
func (e *TokenEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	minLength := gcmNonceSize + 1 + e.cipher.Overhead()
	if len(data) < minLength {
		return "", ErrCiphertextTooShort
	}

	nonce := data[:gcmNonceSize]
	encryptedData := data[gcmNonceSize:]

	plaintext, err := e.cipher.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// MaskToken returns a display-safe form showing only the last 4 characters.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****..." + token[len(token)-4:]
}

func deriveKey(masterSecret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(masterSecret),
		[]byte(tokenEncryptionSalt),
		[]byte(tokenEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("read HKDF output: %w", err)
	}

	return key, nil
}

// ValidateSetup performs a round-trip encrypt/decrypt test.
func (e *TokenEncryptor) ValidateSetup() error {
	const testData = "encryption-validation-test"

	encrypted, err := e.Encrypt(testData)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}

	decrypted, err := e.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}

	if decrypted != testData {
		return errors.New("round-trip validation failed: data mismatch")
	}

	return nil
}
