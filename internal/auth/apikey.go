// Package auth provides the credential primitives for medgate: API key
// generation and the peppered digest used to store and look keys up.
//
// Keys are never stored raw. Lookup works by recomputing the digest of the
// presented key, so the digest must be deterministic: the same key and the
// same pepper always produce the same digest. That rules out per-call-salted
// schemes like bcrypt for the lookup digest; bcrypt is still used where a
// non-deterministic hash is fine (the internal admin token, see the
// middleware package).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// APIKeyLength is the length of the random part of an API key in bytes
	APIKeyLength = 32

	// AuthorizationHeader is the request header carrying the API key
	AuthorizationHeader = "Authorization"
)

// Hasher computes the storage digest of a raw credential. Construct it once
// at startup via NewHasher, which fails on an empty pepper; there are no
// per-call error conditions.
type Hasher struct {
	pepper string
}

// NewHasher creates a Hasher with the process-wide pepper.
func NewHasher(pepper string) (*Hasher, error) {
	if pepper == "" {
		return nil, errors.New("credential pepper must not be empty")
	}
	return &Hasher{pepper: pepper}, nil
}

// Hash returns the hex-encoded SHA-256 digest of secret concatenated with
// the pepper. Deterministic and one-way.
func (h *Hasher) Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret + h.pepper))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new random API key with the given prefix.
// The full key is returned exactly once to the caller; only its digest
// (computed separately by the Hasher) is ever persisted.
func GenerateAPIKey(prefix string) (string, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ExtractAPIKeyFromHeader extracts the API key from an Authorization header.
// Both "Bearer mg_abc..." and a bare "mg_abc..." value are accepted: SDK
// clients send the bearer form, older integrations send the key alone.
func ExtractAPIKeyFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if key == "" {
		return "", errors.New("API key is empty after Bearer prefix")
	}

	return key, nil
}
