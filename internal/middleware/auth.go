// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Metrics → Logger → Security → CORS → RateLimit → Auth → Permission → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth resolves the caller (session or API key) and its permissions; the
// permission checks read from that context.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/auth"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/safego"
	"github.com/serversoft/serversoft/internal/telemetry"
)

// SessionCookieName is the HTTP-only cookie carrying the session JWT.
const SessionCookieName = "serversoft_session"

// Authentication methods stored under "auth_method".
const (
	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// lastUsedTimeout bounds the async last_used_at update.
const lastUsedTimeout = 5 * time.Second

// AuthMiddleware resolves the caller from a session token or an API key and
// aborts with 401 when neither is valid.
//
// Token sources, in order: Authorization: Bearer, the session cookie, and
// the ?token= query parameter on websocket upgrades (browsers cannot set
// headers on a websocket handshake).
func AuthMiddleware(cfg *config.Config, userRepo *repositories.UserRepository, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	prefix := cfg.Auth.APIKeys.Prefix
	return func(c *gin.Context) {
		token, status, msg := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		if auth.IsAPIKey(token, prefix) {
			authenticateWithAPIKey(c, token, userRepo, apiKeyRepo)
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			slog.Error("auth: failed to load session user", "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		setCaller(c, user, AuthMethodSession, []string{string(auth.PermAll)})
		c.Next()
	}
}

func authenticateWithAPIKey(c *gin.Context, token string, userRepo *repositories.UserRepository, apiKeyRepo *repositories.APIKeyRepository) {
	ctx := c.Request.Context()

	apiKey, err := authenticateAPIKey(ctx, token, apiKeyRepo)
	if err != nil {
		slog.Error("auth: api key lookup failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		return
	}
	if apiKey == nil {
		telemetry.APIKeyAuthTotal.WithLabelValues("invalid").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}
	if apiKey.IsExpired(time.Now()) {
		telemetry.APIKeyAuthTotal.WithLabelValues("expired").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key expired"})
		return
	}

	user, err := userRepo.GetUserByID(ctx, apiKey.UserID)
	if err != nil {
		slog.Error("auth: failed to load api key owner", "key_id", apiKey.ID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	if user == nil {
		telemetry.APIKeyAuthTotal.WithLabelValues("invalid").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}

	telemetry.APIKeyAuthTotal.WithLabelValues("ok").Inc()

	keyID := apiKey.ID
	safego.GoTimeout("apikey.last_used", lastUsedTimeout, func(ctx context.Context) {
		if err := apiKeyRepo.UpdateLastUsed(ctx, keyID); err != nil {
			slog.Warn("auth: failed to update api key last_used_at", "key_id", keyID, "error", err)
		}
	})

	c.Set("api_key", apiKey)
	c.Set("api_key_id", apiKey.ID)
	setCaller(c, user, AuthMethodAPIKey, apiKey.Permissions)
	c.Next()
}

// authenticateAPIKey narrows candidates by the stored prefix, then runs the
// bcrypt comparison on each.
func authenticateAPIKey(ctx context.Context, providedKey string, apiKeyRepo *repositories.APIKeyRepository) (*models.APIKey, error) {
	keys, err := apiKeyRepo.GetAPIKeysByPrefix(ctx, auth.KeyPrefix(providedKey))
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if auth.ValidateAPIKey(providedKey, key.KeyHash) {
			return key, nil
		}
	}
	return nil, nil
}

// extractToken returns the caller's token, or an empty token plus the status
// and message to abort with.
func extractToken(c *gin.Context) (string, int, string) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, err := auth.ExtractBearerToken(header)
		if err != nil {
			return "", http.StatusUnauthorized, err.Error()
		}
		return token, 0, ""
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie, 0, ""
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if token := c.Query("token"); token != "" {
			return token, 0, ""
		}
	}
	return "", http.StatusUnauthorized, "Authentication required"
}

func setCaller(c *gin.Context, user *models.User, method string, permissions []string) {
	if permissions == nil {
		permissions = []string{}
	}
	c.Set("user", user)
	c.Set("user_id", user.ID)
	c.Set("auth_method", method)
	c.Set("scopes", permissions)
}

// CurrentUser returns the authenticated user, or nil outside AuthMiddleware.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentUserID returns the authenticated user's ID, or "".
func CurrentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// IsSession reports whether the caller authenticated with a session token.
func IsSession(c *gin.Context) bool {
	return c.GetString("auth_method") == AuthMethodSession
}
