// Package auth - jwt.go handles session token creation, signing and
// verification with a shared HMAC secret.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtIssuer = "serversoft"

var (
	jwtSecretMu sync.RWMutex
	jwtSecret   string
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

func generateRandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// InitJWTSecret installs the session signing secret. An empty secret is an
// error outside dev mode; in dev mode a random secret is generated and
// sessions do not survive a restart. Call this at application startup.
func InitJWTSecret(secret string) error {
	if secret == "" {
		if !isDevMode() {
			return errors.New("auth.jwt_secret (SERVERSOFT_JWT_SECRET) is required; generate one with: openssl rand -hex 32")
		}
		secret = generateRandomSecret()
		slog.Warn("jwt secret not set, using a generated secret for development; sessions will not persist across restarts")
	} else if len(secret) < 32 {
		slog.Warn("jwt secret is shorter than the recommended 32 characters")
	}

	jwtSecretMu.Lock()
	jwtSecret = secret
	jwtSecretMu.Unlock()
	return nil
}

// GetJWTSecret returns the installed secret, initializing it from the
// environment if InitJWTSecret was never called. Panics if none is available.
func GetJWTSecret() string {
	jwtSecretMu.RLock()
	s := jwtSecret
	jwtSecretMu.RUnlock()
	if s != "" {
		return s
	}

	env := os.Getenv("SERVERSOFT_JWT_SECRET")
	if env == "" {
		env = os.Getenv("SERVERSOFT_AUTH_JWT_SECRET")
	}
	if err := InitJWTSecret(env); err != nil {
		panic(err)
	}
	jwtSecretMu.RLock()
	defer jwtSecretMu.RUnlock()
	return jwtSecret
}

// GenerateJWT creates a session token for an authenticated user
func GenerateJWT(userID, email string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 24 * time.Hour
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and validates a session token
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(jwtIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}
