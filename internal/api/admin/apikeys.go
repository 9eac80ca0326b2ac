// Package admin implements the account administration handlers: API keys,
// dashboard settings and the caller's audit trail. API key management is
// session-only (see middleware.RequireSession) so a leaked key cannot mint
// more keys.
package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/auth"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

const defaultKeyPrefix = "ss"

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	apiKeyRepo *repositories.APIKeyRepository
	keyPrefix  string
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, apiKeyRepo *repositories.APIKeyRepository) *APIKeyHandlers {
	prefix := cfg.Auth.APIKeys.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &APIKeyHandlers{apiKeyRepo: apiKeyRepo, keyPrefix: prefix}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions" binding:"required"`
	ExpiresAt   *string  `json:"expires_at"` // RFC3339
}

// CreateAPIKeyResponse represents the response when creating or rotating an
// API key. Key is the only time the secret is visible.
type CreateAPIKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Key         string     `json:"key"`
	KeyPrefix   string     `json:"key_prefix"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func parseExpiry(raw *string) (*time.Time, string) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, ""
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, "Invalid expires_at format. Use RFC3339"
	}
	if !t.After(time.Now()) {
		return nil, "expires_at must be in the future"
	}
	return &t, ""
}

func checkPermissions(c *gin.Context, perms []string) bool {
	if len(perms) == 0 {
		httperr.BadRequest(c, "At least one permission is required")
		return false
	}
	if err := auth.ValidatePermissions(perms); err != nil {
		httperr.BadRequest(c, "Invalid permissions: "+err.Error())
		return false
	}
	return true
}

// ListAPIKeysHandler lists the caller's API keys, newest first.
// GET /api/v1/apikeys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		keys, err := h.apiKeyRepo.ListAPIKeysByUser(c.Request.Context(), userID)
		if err != nil {
			httperr.Internal(c, "Failed to list API keys", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"keys": keys, "available_permissions": auth.AllPermissions()})
	}
}

// @Summary      Create API key
// @Description  Mints an API key restricted to the given permissions. The raw key is only returned in this response.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "Key"
// @Success      201  {object}  CreateAPIKeyResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid permissions or expiry"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized - user not authenticated"
// @Router       /api/v1/apikeys [post]
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request")
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			httperr.BadRequest(c, "name is required")
			return
		}
		if !checkPermissions(c, req.Permissions) {
			return
		}
		expiresAt, msg := parseExpiry(req.ExpiresAt)
		if msg != "" {
			httperr.BadRequest(c, msg)
			return
		}

		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(h.keyPrefix)
		if err != nil {
			httperr.Internal(c, "Failed to generate API key", err)
			return
		}
		apiKey := &models.APIKey{
			UserID:      userID,
			Name:        name,
			Description: req.Description,
			KeyHash:     keyHash,
			KeyPrefix:   displayPrefix,
			Permissions: req.Permissions,
			ExpiresAt:   expiresAt,
		}
		if err := h.apiKeyRepo.CreateAPIKey(c.Request.Context(), apiKey); err != nil {
			httperr.Internal(c, "Failed to create API key", err)
			return
		}

		c.JSON(http.StatusCreated, newKeyResponse(apiKey, fullKey))
	}
}

func newKeyResponse(k *models.APIKey, fullKey string) CreateAPIKeyResponse {
	return CreateAPIKeyResponse{
		ID:          k.ID,
		Name:        k.Name,
		Description: k.Description,
		Key:         fullKey,
		KeyPrefix:   k.KeyPrefix,
		Permissions: k.Permissions,
		ExpiresAt:   k.ExpiresAt,
		CreatedAt:   k.CreatedAt,
	}
}

func (h *APIKeyHandlers) load(c *gin.Context, userID string) (*models.APIKey, bool) {
	k, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to retrieve API key", err)
		return nil, false
	}
	if k == nil {
		httperr.NotFound(c, "API key")
		return nil, false
	}
	return k, true
}

// GetAPIKeyHandler retrieves one of the caller's API keys.
// GET /api/v1/apikeys/:id
func (h *APIKeyHandlers) GetAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		k, ok := h.load(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": k})
	}
}

// UpdateAPIKeyRequest carries the fields to change. Omitted fields keep their
// value; an empty expires_at removes the expiry.
type UpdateAPIKeyRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
	ExpiresAt   *string  `json:"expires_at"`
}

// UpdateAPIKeyHandler updates an API key (name, permissions, expiration)
// PUT /api/v1/apikeys/:id
func (h *APIKeyHandlers) UpdateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req UpdateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request")
			return
		}
		k, ok := h.load(c, userID)
		if !ok {
			return
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				httperr.BadRequest(c, "name cannot be empty")
				return
			}
			k.Name = name
		}
		if req.Description != nil {
			k.Description = req.Description
		}
		if req.Permissions != nil {
			if !checkPermissions(c, req.Permissions) {
				return
			}
			k.Permissions = req.Permissions
		}
		if req.ExpiresAt != nil {
			expiresAt, msg := parseExpiry(req.ExpiresAt)
			if msg != "" {
				httperr.BadRequest(c, msg)
				return
			}
			k.ExpiresAt = expiresAt
		}

		if err := h.apiKeyRepo.UpdateAPIKey(c.Request.Context(), k); err != nil {
			httperr.Repo(c, err, "API key", "Failed to update API key")
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": k})
	}
}

// DeleteAPIKeyHandler revokes an API key
// DELETE /api/v1/apikeys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		if err := h.apiKeyRepo.DeleteAPIKey(c.Request.Context(), userID, c.Param("id")); err != nil {
			httperr.Repo(c, err, "API key", "Failed to delete API key")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key deleted successfully"})
	}
}

// @Summary      Rotate API key
// @Description  Replaces the key's secret. The old secret stops working immediately; name, permissions and expiry are kept.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  CreateAPIKeyResponse
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Router       /api/v1/apikeys/{id}/rotate [post]
func (h *APIKeyHandlers) RotateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		k, ok := h.load(c, userID)
		if !ok {
			return
		}

		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(h.keyPrefix)
		if err != nil {
			httperr.Internal(c, "Failed to generate new API key", err)
			return
		}
		if err := h.apiKeyRepo.RotateAPIKey(c.Request.Context(), userID, k.ID, keyHash, displayPrefix); err != nil {
			httperr.Repo(c, err, "API key", "Failed to rotate API key")
			return
		}
		k.KeyPrefix = displayPrefix
		c.JSON(http.StatusOK, newKeyResponse(k, fullKey))
	}
}
