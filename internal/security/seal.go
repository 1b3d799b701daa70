// Package security seals small local state files so they only open on the
// device that wrote them.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const payloadVersion = 1

// ErrSealBroken is returned when a sealed payload fails to open: wrong
// secret, tampering or a foreign format.
var ErrSealBroken = errors.New("sealed payload cannot be opened")

// SealConfig holds the scrypt cost parameters.
type SealConfig struct {
	SCryptN int
	SCryptR int
	SCryptP int
}

// DefaultSealConfig returns production scrypt parameters.
func DefaultSealConfig() SealConfig {
	return SealConfig{SCryptN: 32768, SCryptR: 8, SCryptP: 1}
}

// sealedPayload is the on-disk JSON document.
type sealedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Sealer encrypts with AES-256-GCM under a key derived from a secret.
type Sealer struct {
	cfg SealConfig
}

// NewSealer returns a Sealer using cfg.
func NewSealer(cfg SealConfig) *Sealer {
	return &Sealer{cfg: cfg}
}

// Seal encrypts plaintext and returns the encoded payload. The secret is
// bound in as additional authenticated data as well as key material.
func (s *Sealer) Seal(plaintext, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret cannot be empty")
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.aead(secret, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return json.Marshal(sealedPayload{
		Version:    payloadVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, secret),
	})
}

// Open reverses Seal. Any failure other than malformed input maps to
// ErrSealBroken.
func (s *Sealer) Open(data, secret []byte) ([]byte, error) {
	var payload sealedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	if payload.Version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSealBroken, payload.Version)
	}

	gcm, err := s.aead(secret, payload.Salt)
	if err != nil {
		return nil, err
	}
	if len(payload.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrSealBroken)
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, secret)
	if err != nil {
		return nil, ErrSealBroken
	}
	return plaintext, nil
}

func (s *Sealer) aead(secret, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(secret, salt, s.cfg.SCryptN, s.cfg.SCryptR, s.cfg.SCryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
