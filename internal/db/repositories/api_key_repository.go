// api_key_repository.go implements APIKeyRepository: key lookup by prefix for
// authentication, per-user management, rotation and expiry bookkeeping.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/serversoft/serversoft/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, user_id, name, description, key_hash, key_prefix, permissions, expires_at, last_used_at, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAPIKey(s scanner) (*models.APIKey, error) {
	k := &models.APIKey{}
	var permissionsJSON []byte
	err := s.Scan(
		&k.ID,
		&k.UserID,
		&k.Name,
		&k.Description,
		&k.KeyHash,
		&k.KeyPrefix,
		&permissionsJSON,
		&k.ExpiresAt,
		&k.LastUsedAt,
		&k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permissionsJSON, &k.Permissions); err != nil {
		return nil, err
	}
	return k, nil
}

func scanAPIKeys(rows *sql.Rows) ([]*models.APIKey, error) {
	defer rows.Close()
	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CreateAPIKey inserts a new key, assigning its ID and creation time.
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	permissionsJSON, err := json.Marshal(normalizePermissions(apiKey.Permissions))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, description, key_hash, key_prefix, permissions, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.UserID,
		apiKey.Name,
		apiKey.Description,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		permissionsJSON,
		apiKey.ExpiresAt,
		apiKey.CreatedAt,
	)
	return err
}

// GetAPIKeyByID retrieves a key owned by userID.
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, userID, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1 AND user_id = $2`

	k, err := scanAPIKey(r.db.QueryRowContext(ctx, query, keyID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// ListAPIKeysByUser retrieves all keys for a user, newest first.
func (r *APIKeyRepository) ListAPIKeysByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanAPIKeys(rows)
}

// GetAPIKeysByPrefix retrieves candidate keys for authentication. Several
// keys may share a display prefix; the caller bcrypt-compares each.
func (r *APIKeyRepository) GetAPIKeysByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, keyPrefix)
	if err != nil {
		return nil, err
	}
	return scanAPIKeys(rows)
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}

// UpdateAPIKey updates name, description, permissions and expiry of a key
// owned by apiKey.UserID.
func (r *APIKeyRepository) UpdateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	permissionsJSON, err := json.Marshal(normalizePermissions(apiKey.Permissions))
	if err != nil {
		return err
	}

	query := `
		UPDATE api_keys
		SET name = $3, description = $4, permissions = $5, expires_at = $6,
		    expiry_notification_sent_at = NULL
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.UserID,
		apiKey.Name,
		apiKey.Description,
		permissionsJSON,
		apiKey.ExpiresAt,
	))
}

// RotateAPIKey replaces the secret of a key in one statement so the old
// secret stops working at the same moment the new one starts.
func (r *APIKeyRepository) RotateAPIKey(ctx context.Context, userID, keyID, keyHash, keyPrefix string) error {
	query := `
		UPDATE api_keys
		SET key_hash = $3, key_prefix = $4, last_used_at = NULL
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.ExecContext(ctx, query, keyID, userID, keyHash, keyPrefix))
}

// DeleteAPIKey revokes a key owned by userID.
func (r *APIKeyRepository) DeleteAPIKey(ctx context.Context, userID, keyID string) error {
	query := `DELETE FROM api_keys WHERE id = $1 AND user_id = $2`
	return expectOne(r.db.ExecContext(ctx, query, keyID, userID))
}

// FindExpiringKeys returns keys that expire within warningDays and have not
// been notified yet, joined with the owner's email for the notifier.
func (r *APIKeyRepository) FindExpiringKeys(ctx context.Context, warningDays int) ([]*models.APIKey, error) {
	cutoff := time.Now().Add(time.Duration(warningDays) * 24 * time.Hour)
	query := `
		SELECT ak.id, ak.user_id, ak.name, ak.description, ak.key_hash, ak.key_prefix, ak.permissions,
		       ak.expires_at, ak.last_used_at, ak.created_at, u.email, u.name
		FROM api_keys ak
		JOIN users u ON u.id = ak.user_id
		WHERE ak.expires_at IS NOT NULL
		  AND ak.expires_at > NOW()
		  AND ak.expires_at <= $1
		  AND ak.expiry_notification_sent_at IS NULL
		ORDER BY ak.expires_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k := &models.APIKey{}
		var permissionsJSON []byte
		err := rows.Scan(
			&k.ID, &k.UserID, &k.Name, &k.Description, &k.KeyHash, &k.KeyPrefix, &permissionsJSON,
			&k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt, &k.UserEmail, &k.UserName,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(permissionsJSON, &k.Permissions); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MarkExpiryNotificationSent records that the expiry warning was sent,
// preventing duplicates on later runs.
func (r *APIKeyRepository) MarkExpiryNotificationSent(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET expiry_notification_sent_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), keyID)
	return err
}

func normalizePermissions(p models.StringList) []string {
	if p == nil {
		return []string{}
	}
	return p
}
