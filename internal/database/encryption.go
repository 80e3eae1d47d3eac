package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"hydra/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// encryptor optionally encrypts captured bodies and headers at rest.
// When disabled (the default) every operation is a pass-through.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	if os.Getenv(constants.EncryptionEnabledVar) != "true" {
		return &encryptor{}, nil
	}

	secret := os.Getenv(constants.EncryptionSecretEnvVar)
	if secret == "" {
		return nil, fmt.Errorf("%s is required when encryption is enabled", constants.EncryptionSecretEnvVar)
	}

	key := pbkdf2.Key([]byte(secret), []byte("hydra-ingress-store"), constants.KeyIterations, constants.KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

// EncryptIfEnabled seals plaintext with a random nonce prepended.
func (e *encryptor) EncryptIfEnabled(plaintext []byte) ([]byte, error) {
	if e.gcm == nil || len(plaintext) == 0 {
		return plaintext, nil
	}

	nonce := make([]byte, constants.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return append(nonce, e.gcm.Seal(nil, nonce, plaintext, nil)...), nil
}

// DecryptIfEnabled reverses EncryptIfEnabled.
func (e *encryptor) DecryptIfEnabled(data []byte) ([]byte, error) {
	if e.gcm == nil || len(data) == 0 {
		return data, nil
	}
	if len(data) < constants.NonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:constants.NonceSize], data[constants.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptStringIfEnabled seals a text column, base64-encoding the result so
// it stays a valid TEXT value.
func (e *encryptor) EncryptStringIfEnabled(plaintext string) (string, error) {
	if e.gcm == nil || plaintext == "" {
		return plaintext, nil
	}

	sealed, err := e.EncryptIfEnabled([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptStringIfEnabled reverses EncryptStringIfEnabled.
func (e *encryptor) DecryptStringIfEnabled(stored string) (string, error) {
	if e.gcm == nil || stored == "" {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	plaintext, err := e.DecryptIfEnabled(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
