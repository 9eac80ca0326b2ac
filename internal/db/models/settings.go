package models

import "time"

// UserSettings holds UI and notification preferences, one row per user.
type UserSettings struct {
	UserID                 string    `db:"user_id" json:"user_id"`
	Theme                  string    `db:"theme" json:"theme"`
	EmailNotifications     bool      `db:"email_notifications" json:"email_notifications"`
	WebhookNotifications   bool      `db:"webhook_notifications" json:"webhook_notifications"`
	ServerAlerts           bool      `db:"server_alerts" json:"server_alerts"`
	CompactView            bool      `db:"compact_view" json:"compact_view"`
	RefreshIntervalSeconds int       `db:"refresh_interval_seconds" json:"refresh_interval_seconds"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultUserSettings returns the settings a user has before saving any.
func DefaultUserSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:                 userID,
		Theme:                  "system",
		EmailNotifications:     true,
		WebhookNotifications:   true,
		ServerAlerts:           true,
		CompactView:            false,
		RefreshIntervalSeconds: 30,
	}
}
