package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/safego"
	"github.com/serversoft/serversoft/internal/telemetry"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "ServerSoft-Webhook/1.0"
)

// Store is the webhook persistence the dispatcher needs.
type Store interface {
	ListActiveWebhooks(ctx context.Context, userID string) ([]*models.WorkflowWebhook, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}

// SettingsStore looks up whether a user has webhook notifications enabled.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*models.UserSettings, error)
}

// Payload is the JSON body of every outbound delivery.
type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Dispatcher posts signed event payloads to the subscribed webhooks of a user.
type Dispatcher struct {
	store    Store
	settings SettingsStore
	cipher   *crypto.Cipher
	client   *http.Client
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher. settings may be nil, in which case
// every user receives deliveries.
func NewDispatcher(store Store, settings SettingsStore, cipher *crypto.Cipher, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		store:    store,
		settings: settings,
		cipher:   cipher,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

// Dispatch delivers event in the background. Failures are logged and counted.
func (d *Dispatcher) Dispatch(userID, event string, data interface{}) {
	if d == nil {
		return
	}
	safego.GoTimeout("webhooks.dispatch", 2*d.timeout, func(ctx context.Context) {
		if _, err := d.DispatchSync(ctx, userID, event, data); err != nil {
			slog.Error("webhook dispatch failed", "event", event, "user_id", userID, "error", err)
		}
	})
}

// DispatchSync delivers event to every active webhook of userID subscribed
// to it and returns the number of successful deliveries.
func (d *Dispatcher) DispatchSync(ctx context.Context, userID, event string, data interface{}) (int, error) {
	if d.settings != nil {
		s, err := d.settings.GetSettings(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("load settings: %w", err)
		}
		if s != nil && !s.WebhookNotifications {
			return 0, nil
		}
	}

	hooks, err := d.store.ListActiveWebhooks(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}

	delivered := 0
	for _, hook := range hooks {
		if !hook.Subscribes(event) {
			continue
		}
		if err := d.Deliver(ctx, hook, event, data); err != nil {
			slog.Warn("webhook delivery failed", "webhook_id", hook.ID, "event", event, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Deliver posts one event to hook regardless of its subscriptions.
func (d *Dispatcher) Deliver(ctx context.Context, hook *models.WorkflowWebhook, event string, data interface{}) error {
	body, err := json.Marshal(Payload{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	secret, err := d.cipher.Decrypt(hook.SecretEncrypted)
	if err != nil {
		telemetry.CredentialDecryptFailuresTotal.Inc()
		telemetry.WebhookDeliveriesTotal.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("decrypt webhook secret: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(event, "error").Inc()
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-ServerSoft-Event", event)
	req.Header.Set("X-ServerSoft-Delivery", uuid.NewString())
	req.Header.Set(SignatureHeader, Sign(secret, body))

	start := time.Now()
	resp, err := d.client.Do(req)
	telemetry.WebhookRelayDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("post %s: %w", hook.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(event, "rejected").Inc()
		return fmt.Errorf("post %s: unexpected status %d", hook.URL, resp.StatusCode)
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(event, "ok").Inc()

	if err := d.store.MarkTriggered(ctx, hook.ID, time.Now().UTC()); err != nil {
		slog.Warn("failed to record webhook trigger time", "webhook_id", hook.ID, "error", err)
	}
	return nil
}
