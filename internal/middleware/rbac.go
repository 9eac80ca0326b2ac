// Package middleware (rbac.go) implements permission checks for session and
// API-key callers.
//
// Session callers carry "*" for their own data. API keys carry the permission
// list they were minted with; "X:write" also grants "X:read".

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/auth"
	"github.com/serversoft/serversoft/internal/telemetry"
)

// RequirePermission aborts with 403 unless the caller holds perm.
func RequirePermission(perm auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopesVal, exists := c.Get("scopes")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		granted, ok := scopesVal.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid permissions format",
			})
			return
		}

		if !auth.HasPermission(granted, perm) {
			if c.GetString("auth_method") == AuthMethodAPIKey {
				telemetry.APIKeyAuthTotal.WithLabelValues("forbidden").Inc()
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required permission",
				"details": "Required permission: " + string(perm),
			})
			return
		}

		c.Next()
	}
}

// RequireSession aborts with 403 for API-key callers. Used for account
// operations (password change, key management) that a machine client must
// not perform.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsSession(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "This operation requires an interactive session",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the resolved user is an admin and the
// caller holds "*". An API key owned by an admin only passes when it was
// minted with "*"; narrower keys stay limited to their permissions.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		granted, _ := c.Get("scopes")
		scopes, _ := granted.([]string)
		if !auth.HasPermission(scopes, auth.PermAll) {
			if c.GetString("auth_method") == AuthMethodAPIKey {
				telemetry.APIKeyAuthTotal.WithLabelValues("forbidden").Inc()
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required permission",
				"details": "Required permission: " + string(auth.PermAll),
			})
			return
		}
		c.Next()
	}
}
