package models

import "time"

// APIKey authenticates machine clients as its owning user, restricted to
// Permissions.
type APIKey struct {
	ID                       string     `db:"id" json:"id"`
	UserID                   string     `db:"user_id" json:"user_id"`
	Name                     string     `db:"name" json:"name"`
	Description              *string    `db:"description" json:"description,omitempty"`
	KeyHash                  string     `db:"key_hash" json:"-"`
	KeyPrefix                string     `db:"key_prefix" json:"key_prefix"`
	Permissions              StringList `db:"permissions" json:"permissions"`
	ExpiresAt                *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt               *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	ExpiryNotificationSentAt *time.Time `db:"expiry_notification_sent_at" json:"-"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`

	// Joined from users by the expiry notifier
	UserEmail *string `db:"user_email" json:"-"`
	UserName  *string `db:"user_name" json:"-"`
}

// IsExpired reports whether the key has an expiry at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
