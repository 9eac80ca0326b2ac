package admin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

const (
	minRefreshInterval = 5
	maxRefreshInterval = 3600
)

var validThemes = map[string]bool{"system": true, "light": true, "dark": true}

// SettingsHandlers serves /api/v1/settings.
type SettingsHandlers struct {
	settingsRepo *repositories.SettingsRepository
}

// NewSettingsHandlers creates the settings handlers.
func NewSettingsHandlers(settingsRepo *repositories.SettingsRepository) *SettingsHandlers {
	return &SettingsHandlers{settingsRepo: settingsRepo}
}

func (h *SettingsHandlers) current(c *gin.Context, userID string) (*models.UserSettings, bool) {
	s, err := h.settingsRepo.GetSettings(c.Request.Context(), userID)
	if err != nil {
		httperr.Internal(c, "Failed to load settings", err)
		return nil, false
	}
	if s == nil {
		s = models.DefaultUserSettings(userID)
	}
	return s, true
}

// GetSettingsHandler returns the caller's settings, or the defaults when
// none have been saved.
func (h *SettingsHandlers) GetSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		s, ok := h.current(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// UpdateSettingsRequest is a partial update; omitted fields keep their value.
type UpdateSettingsRequest struct {
	Theme                  *string `json:"theme"`
	EmailNotifications     *bool   `json:"email_notifications"`
	WebhookNotifications   *bool   `json:"webhook_notifications"`
	ServerAlerts           *bool   `json:"server_alerts"`
	CompactView            *bool   `json:"compact_view"`
	RefreshIntervalSeconds *int    `json:"refresh_interval_seconds"`
}

// UpdateSettingsHandler merges the request into the stored settings.
func (h *SettingsHandlers) UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if req.Theme != nil && !validThemes[*req.Theme] {
			httperr.BadRequest(c, "theme must be system, light or dark")
			return
		}
		if r := req.RefreshIntervalSeconds; r != nil && (*r < minRefreshInterval || *r > maxRefreshInterval) {
			httperr.BadRequest(c, fmt.Sprintf("refresh_interval_seconds must be between %d and %d",
				minRefreshInterval, maxRefreshInterval))
			return
		}

		s, ok := h.current(c, userID)
		if !ok {
			return
		}
		if req.Theme != nil {
			s.Theme = *req.Theme
		}
		if req.EmailNotifications != nil {
			s.EmailNotifications = *req.EmailNotifications
		}
		if req.WebhookNotifications != nil {
			s.WebhookNotifications = *req.WebhookNotifications
		}
		if req.ServerAlerts != nil {
			s.ServerAlerts = *req.ServerAlerts
		}
		if req.CompactView != nil {
			s.CompactView = *req.CompactView
		}
		if req.RefreshIntervalSeconds != nil {
			s.RefreshIntervalSeconds = *req.RefreshIntervalSeconds
		}

		if err := h.settingsRepo.UpsertSettings(c.Request.Context(), s); err != nil {
			httperr.Internal(c, "Failed to save settings", err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}
