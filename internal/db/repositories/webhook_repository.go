// webhook_repository.go implements WebhookRepository for workflow webhooks.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// WebhookRepository handles workflow webhook database operations
type WebhookRepository struct {
	db *sqlx.DB
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, user_id, name, webhook_key, secret_encrypted, url, events, active,
	last_triggered_at, created_at, updated_at`

// CreateWebhook inserts a webhook. WebhookKey must already be generated.
func (r *WebhookRepository) CreateWebhook(ctx context.Context, w *models.WorkflowWebhook) error {
	w.ID = uuid.New().String()
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt

	query := `
		INSERT INTO workflow_webhooks (id, user_id, name, webhook_key, secret_encrypted, url, events, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.Name, w.WebhookKey, w.SecretEncrypted, w.URL, w.Events, w.Active, w.CreatedAt, w.UpdatedAt)
	return translateError(err)
}

// GetWebhook retrieves a webhook owned by userID.
func (r *WebhookRepository) GetWebhook(ctx context.Context, userID, id string) (*models.WorkflowWebhook, error) {
	return r.getOne(ctx, `SELECT `+webhookColumns+` FROM workflow_webhooks WHERE id = $1 AND user_id = $2`, id, userID)
}

// GetWebhookByKey resolves the path key of an inbound callback. The key is
// the only scope on that unauthenticated route; the secret is checked by
// the caller.
func (r *WebhookRepository) GetWebhookByKey(ctx context.Context, key string) (*models.WorkflowWebhook, error) {
	return r.getOne(ctx, `SELECT `+webhookColumns+` FROM workflow_webhooks WHERE webhook_key = $1`, key)
}

func (r *WebhookRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.WorkflowWebhook, error) {
	var w models.WorkflowWebhook
	err := r.db.GetContext(ctx, &w, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWebhooks returns all of the user's webhooks.
func (r *WebhookRepository) ListWebhooks(ctx context.Context, userID string) ([]*models.WorkflowWebhook, error) {
	hooks := make([]*models.WorkflowWebhook, 0)
	err := r.db.SelectContext(ctx, &hooks,
		`SELECT `+webhookColumns+` FROM workflow_webhooks WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

// ListActiveWebhooks returns the user's active webhooks, for dispatch.
func (r *WebhookRepository) ListActiveWebhooks(ctx context.Context, userID string) ([]*models.WorkflowWebhook, error) {
	hooks := make([]*models.WorkflowWebhook, 0)
	err := r.db.SelectContext(ctx, &hooks,
		`SELECT `+webhookColumns+` FROM workflow_webhooks WHERE user_id = $1 AND active = TRUE ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

// UpdateWebhook writes name, URL, events and the active flag.
func (r *WebhookRepository) UpdateWebhook(ctx context.Context, w *models.WorkflowWebhook) error {
	w.UpdatedAt = time.Now()
	query := `
		UPDATE workflow_webhooks
		SET name = $3, url = $4, events = $5, active = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.ExecContext(ctx, query, w.ID, w.UserID, w.Name, w.URL, w.Events, w.Active, w.UpdatedAt))
}

// MarkTriggered stamps last_triggered_at.
func (r *WebhookRepository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workflow_webhooks SET last_triggered_at = $2 WHERE id = $1`, id, at)
	return err
}

// DeleteWebhook removes a webhook owned by userID.
func (r *WebhookRepository) DeleteWebhook(ctx context.Context, userID, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM workflow_webhooks WHERE id = $1 AND user_id = $2`, id, userID))
}
