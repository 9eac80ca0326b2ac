// Package webhooks delivers signed event notifications to workflow webhooks
// and relays inbound callbacks to their downstream URL.
package webhooks

// Event types delivered to workflow webhooks and websocket subscribers.
const (
	EventInstallationCreated       = "installation.created"
	EventInstallationStatusChanged = "installation.status_changed"
	EventInstallationDeleted       = "installation.deleted"
	EventServerCreated             = "server.created"
	EventServerDeleted             = "server.deleted"
	EventServerStatusChanged       = "server.status_changed"
	EventAPIKeyExpiring            = "api_key.expiring"
	EventCallbackReceived          = "callback.received"
	EventTest                      = "webhook.test"
)

// Events lists the event types a webhook may subscribe to.
var Events = []string{
	EventInstallationCreated,
	EventInstallationStatusChanged,
	EventInstallationDeleted,
	EventServerCreated,
	EventServerDeleted,
	EventServerStatusChanged,
	EventAPIKeyExpiring,
	EventCallbackReceived,
}

// ValidEvent reports whether e can be subscribed to. "*" subscribes to all.
func ValidEvent(e string) bool {
	if e == "*" {
		return true
	}
	for _, known := range Events {
		if e == known {
			return true
		}
	}
	return false
}
