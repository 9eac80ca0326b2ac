package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// SettingsRepository handles per-user settings
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSettings returns the stored settings, or nil if the user never saved any.
func (r *SettingsRepository) GetSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	var s models.UserSettings
	query := `
		SELECT user_id, theme, email_notifications, webhook_notifications, server_alerts,
			compact_view, refresh_interval_seconds, updated_at
		FROM user_settings
		WHERE user_id = $1
	`
	err := r.db.GetContext(ctx, &s, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSettings writes the full settings row.
func (r *SettingsRepository) UpsertSettings(ctx context.Context, s *models.UserSettings) error {
	s.UpdatedAt = time.Now()
	query := `
		INSERT INTO user_settings (user_id, theme, email_notifications, webhook_notifications, server_alerts,
			compact_view, refresh_interval_seconds, updated_at)
		VALUES (:user_id, :theme, :email_notifications, :webhook_notifications, :server_alerts,
			:compact_view, :refresh_interval_seconds, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			theme = EXCLUDED.theme,
			email_notifications = EXCLUDED.email_notifications,
			webhook_notifications = EXCLUDED.webhook_notifications,
			server_alerts = EXCLUDED.server_alerts,
			compact_view = EXCLUDED.compact_view,
			refresh_interval_seconds = EXCLUDED.refresh_interval_seconds,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}
