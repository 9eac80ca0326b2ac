package models

import "time"

// WorkflowWebhook relays events to and from an external automation tool.
// WebhookKey scopes the inbound callback path; the secret authenticates
// callbacks and signs outbound deliveries.
type WorkflowWebhook struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Name            string     `db:"name" json:"name"`
	WebhookKey      string     `db:"webhook_key" json:"webhook_key"`
	SecretEncrypted string     `db:"secret_encrypted" json:"-"`
	URL             string     `db:"url" json:"url"`
	Events          StringList `db:"events" json:"events"`
	Active          bool       `db:"active" json:"active"`
	LastTriggeredAt *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Subscribes reports whether the webhook wants event. An empty list means all.
func (w *WorkflowWebhook) Subscribes(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	return w.Events.Contains(event) || w.Events.Contains("*")
}
