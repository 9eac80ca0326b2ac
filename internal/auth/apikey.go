// Package auth provides authentication primitives for ServerSoft: API key
// generation and validation, session JWTs, password hashing, reset tokens and
// the permission model shared by session and API-key callers.
// See internal/middleware/auth.go for the request-time logic that uses them.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of leading characters stored as
	// key_prefix and used for lookup
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// ErrInvalidAPIKeyFormat is returned for bearer values that cannot be an API key.
var ErrInvalidAPIKeyFormat = errors.New("invalid API key format")

// GenerateAPIKey creates a new random API key with the given prefix
// Returns: full key (to show once), bcrypt hash (to store), lookup prefix
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(randomBytes))

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return fullKey, string(hashBytes), KeyPrefix(fullKey), nil
}

// KeyPrefix returns the lookup prefix of a full key.
func KeyPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey))
	return err == nil
}

// IsAPIKey reports whether token has the shape of a key minted with prefix,
// as opposed to a session JWT.
func IsAPIKey(token, prefix string) bool {
	return strings.HasPrefix(token, prefix+"_") && !strings.Contains(token, ".")
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer ss_abc123xyz..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
