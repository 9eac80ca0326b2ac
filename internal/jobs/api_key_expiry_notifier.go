// api_key_expiry_notifier.go implements the APIKeyExpiryNotifier background job, which
// periodically scans for API keys approaching their expiry date, warns the owner by
// email and through an api_key.expiring webhook event, and records the warning in
// expiry_notification_sent_at so it is sent exactly once even across restarts.
// Each tick also purges used or expired password reset tokens.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/notify"
	"github.com/serversoft/serversoft/internal/telemetry"
	"github.com/serversoft/serversoft/internal/webhooks"
)

const mailTimeout = 30 * time.Second

// WebhookDispatcher delivers an event to a user's workflow webhooks.
type WebhookDispatcher interface {
	Dispatch(userID, event string, data interface{})
}

// APIKeyExpiryNotifier periodically warns users whose API keys are about to expire.
type APIKeyExpiryNotifier struct {
	apiKeyRepo  *repositories.APIKeyRepository
	userRepo    *repositories.UserRepository
	mailer      notify.Mailer
	dispatcher  WebhookDispatcher
	warningDays int
	interval    time.Duration
	enabled     bool
	stopChan    chan struct{}
	now         func() time.Time
}

// NewAPIKeyExpiryNotifier creates a new APIKeyExpiryNotifier. mailer and
// dispatcher may be nil; the corresponding channel is then skipped.
func NewAPIKeyExpiryNotifier(
	apiKeyRepo *repositories.APIKeyRepository,
	userRepo *repositories.UserRepository,
	mailer notify.Mailer,
	dispatcher WebhookDispatcher,
	cfg config.APIKeyExpiryJobConfig,
) *APIKeyExpiryNotifier {
	hours := cfg.IntervalHours
	if hours <= 0 {
		hours = 24
	}
	days := cfg.WarningDays
	if days <= 0 {
		days = 7
	}
	return &APIKeyExpiryNotifier{
		apiKeyRepo:  apiKeyRepo,
		userRepo:    userRepo,
		mailer:      mailer,
		dispatcher:  dispatcher,
		warningDays: days,
		interval:    time.Duration(hours) * time.Hour,
		enabled:     cfg.Enabled,
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}
}

// Start begins the background loop. It runs an initial check immediately,
// then repeats on the configured interval until ctx is cancelled or Stop is
// called. It returns at once when the job is disabled.
func (n *APIKeyExpiryNotifier) Start(ctx context.Context) {
	if !n.enabled {
		slog.Info("api key expiry notifier disabled")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("api key expiry notifier started",
		"interval", n.interval, "warning_days", n.warningDays, "email", n.mailer != nil)

	n.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			n.runCheck(ctx)
		case <-n.stopChan:
			slog.Info("api key expiry notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("api key expiry notifier context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (n *APIKeyExpiryNotifier) Stop() {
	close(n.stopChan)
}

func (n *APIKeyExpiryNotifier) runCheck(ctx context.Context) {
	n.cleanupResetTokens(ctx)

	keys, err := n.apiKeyRepo.FindExpiringKeys(ctx, n.warningDays)
	if err != nil {
		slog.Error("api key expiry notifier: failed to query expiring keys", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}

	slog.Info("api key expiry notifier: keys approaching expiry", "count", len(keys))

	for _, key := range keys {
		if key.ExpiresAt == nil {
			continue
		}
		if !n.notify(ctx, key) {
			continue
		}
		if err := n.apiKeyRepo.MarkExpiryNotificationSent(ctx, key.ID); err != nil {
			slog.Error("api key expiry notifier: failed to mark notification sent", "key_id", key.ID, "error", err)
		}
	}
}

// notify warns the owner of key. It reports false when the email failed, so
// the key is retried on the next tick.
func (n *APIKeyExpiryNotifier) notify(ctx context.Context, key *models.APIKey) bool {
	if n.mailer != nil && key.UserEmail != nil && *key.UserEmail != "" {
		name := ""
		if key.UserName != nil {
			name = *key.UserName
		}
		subject, body := notify.APIKeyExpiryMessage(name, key.Name, key.KeyPrefix, *key.ExpiresAt, n.now())

		mailCtx, cancel := context.WithTimeout(ctx, mailTimeout)
		err := n.mailer.Send(mailCtx, *key.UserEmail, subject, body)
		cancel()
		if err != nil {
			slog.Error("api key expiry notifier: failed to send email", "key_id", key.ID, "error", err)
			return false
		}
		telemetry.APIKeyExpiryNotificationsSentTotal.Inc()
	}

	if n.dispatcher != nil {
		n.dispatcher.Dispatch(key.UserID, webhooks.EventAPIKeyExpiring, map[string]interface{}{
			"id":         key.ID,
			"name":       key.Name,
			"key_prefix": key.KeyPrefix,
			"expires_at": key.ExpiresAt.UTC(),
		})
	}
	return true
}

func (n *APIKeyExpiryNotifier) cleanupResetTokens(ctx context.Context) {
	if n.userRepo == nil {
		return
	}
	deleted, err := n.userRepo.DeleteExpiredPasswordResetTokens(ctx)
	if err != nil {
		slog.Error("failed to purge password reset tokens", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("purged password reset tokens", "count", deleted)
	}
}
